package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/civicpulse/backend/internal/models"
	"github.com/civicpulse/backend/internal/storage"
)

// MemoryStore keeps everything in process, optionally snapshotted to disk.
// Transactions are serialized and roll back by restoring a copy of the state.
type MemoryStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	issues map[string]*models.Issue
	users  map[string]*models.User
	banned map[string]*models.BannedEmail // by normalized email

	snap *storage.SnapshotFile
}

type memTxKey struct{}

type memorySnapshot struct {
	Issues []models.Issue       `json:"issues"`
	Users  []snapshotUser       `json:"users"`
	Banned []models.BannedEmail `json:"banned_emails"`
}

// snapshotUser keeps the password hash that models.User hides from JSON.
type snapshotUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues: make(map[string]*models.Issue),
		users:  make(map[string]*models.User),
		banned: make(map[string]*models.BannedEmail),
	}
}

// NewPersistentMemoryStore loads the snapshot in dataDir, if any, and saves
// a new one after every committed write.
func NewPersistentMemoryStore(dataDir string) (*MemoryStore, error) {
	snap, err := storage.NewSnapshotFile(dataDir, "civicpulse.json")
	if err != nil {
		return nil, err
	}

	s := NewMemoryStore()
	s.snap = snap

	var doc memorySnapshot
	found, err := snap.Load(&doc)
	if err != nil {
		return nil, err
	}
	if found {
		for i := range doc.Issues {
			is := doc.Issues[i]
			s.issues[is.ID] = &is
		}
		for _, su := range doc.Users {
			u := su.User
			u.PasswordHash = su.PasswordHash
			s.users[u.ID] = &u
		}
		for i := range doc.Banned {
			b := doc.Banned[i]
			s.banned[b.Email] = &b
		}
		log.Printf("[store] loaded snapshot %s: issues=%d users=%d banned=%d",
			snap.Path(), len(s.issues), len(s.users), len(s.banned))
	}
	return s, nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func inMemTx(ctx context.Context) bool {
	return ctx.Value(memTxKey{}) != nil
}

func (s *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	issues, users, banned := s.cloneLocked()
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, memTxKey{}, true))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = s.saveLocked()
	}
	if err != nil {
		// A write that never reached the snapshot did not commit.
		s.issues, s.users, s.banned = issues, users, banned
	}
	return err
}

// Transactions are already serialized.
func (s *MemoryStore) LockSubmitter(ctx context.Context, userID string) error { return nil }

func (s *MemoryStore) LockCells(ctx context.Context, keys []string) error { return nil }

func (s *MemoryStore) cloneLocked() (map[string]*models.Issue, map[string]*models.User, map[string]*models.BannedEmail) {
	issues := make(map[string]*models.Issue, len(s.issues))
	for k, v := range s.issues {
		c := *v
		issues[k] = &c
	}
	users := make(map[string]*models.User, len(s.users))
	for k, v := range s.users {
		c := *v
		users[k] = &c
	}
	banned := make(map[string]*models.BannedEmail, len(s.banned))
	for k, v := range s.banned {
		c := *v
		banned[k] = &c
	}
	return issues, users, banned
}

// mutate applies fn under the data lock. Outside a transaction it also
// excludes transactions and saves the snapshot, undoing fn if the save
// fails; inside one, commit saves.
func (s *MemoryStore) mutate(ctx context.Context, fn func() error) error {
	if inMemTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return fn()
	}
	issues, users, banned := s.cloneLocked()
	if err := fn(); err != nil {
		return err
	}
	if err := s.saveLocked(); err != nil {
		s.issues, s.users, s.banned = issues, users, banned
		return err
	}
	return nil
}

func (s *MemoryStore) saveLocked() error {
	if s.snap == nil {
		return nil
	}
	doc := memorySnapshot{
		Issues: make([]models.Issue, 0, len(s.issues)),
		Users:  make([]snapshotUser, 0, len(s.users)),
		Banned: make([]models.BannedEmail, 0, len(s.banned)),
	}
	for _, is := range s.issues {
		doc.Issues = append(doc.Issues, *is)
	}
	for _, u := range s.users {
		doc.Users = append(doc.Users, snapshotUser{User: *u, PasswordHash: u.PasswordHash})
	}
	for _, b := range s.banned {
		doc.Banned = append(doc.Banned, *b)
	}
	sortIssues(doc.Issues)
	sort.Slice(doc.Users, func(i, j int) bool { return doc.Users[i].ID < doc.Users[j].ID })
	sort.Slice(doc.Banned, func(i, j int) bool { return doc.Banned[i].Email < doc.Banned[j].Email })
	return s.snap.Save(doc)
}

// sortIssues orders by priority score descending, then newest first.
func sortIssues(issues []models.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].PriorityScore != issues[j].PriorityScore {
			return issues[i].PriorityScore > issues[j].PriorityScore
		}
		return issues[i].CreatedAt.After(issues[j].CreatedAt)
	})
}

// Issues

func (s *MemoryStore) LatestIssueBy(ctx context.Context, userID string) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.Issue
	for _, is := range s.issues {
		if is.ReportedBy != userID {
			continue
		}
		if latest == nil || is.CreatedAt.After(latest.CreatedAt) {
			latest = is
		}
	}
	if latest == nil {
		return nil, nil
	}
	c := *latest
	return &c, nil
}

func (s *MemoryStore) CountIssuesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, is := range s.issues {
		if is.ReportedBy == userID && !is.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountIssuesInBox(ctx context.Context, box models.GeoBox) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, is := range s.issues {
		if box.Contains(is.Location) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountUnresolved(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, is := range s.issues {
		if is.Status != models.StatusResolved {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.IssueStatus]int64)
	for _, is := range s.issues {
		counts[is.Status]++
	}
	out := make([]models.StatusCount, 0, len(counts))
	for st, n := range counts {
		out = append(out, models.StatusCount{Status: st, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *MemoryStore) InsertIssue(ctx context.Context, issue *models.Issue) error {
	c := *issue
	return s.mutate(ctx, func() error {
		s.issues[c.ID] = &c
		return nil
	})
}

func (s *MemoryStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	is, ok := s.issues[id]
	if !ok {
		return nil, ErrIssueNotFound
	}
	c := *is
	return &c, nil
}

func (s *MemoryStore) ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Issue, 0)
	for _, is := range s.issues {
		if f.ReportedBy != "" && is.ReportedBy != f.ReportedBy {
			continue
		}
		if f.UnresolvedOnly && is.Status == models.StatusResolved {
			continue
		}
		out = append(out, *is)
	}
	sortIssues(out)
	if f.Limit > 0 && int64(len(out)) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateIssueStatus(ctx context.Context, id string, from []models.IssueStatus, to models.IssueStatus, at time.Time) (*models.Issue, error) {
	var out models.Issue
	err := s.mutate(ctx, func() error {
		is, ok := s.issues[id]
		if !ok {
			return ErrIssueNotFound
		}
		allowed := false
		for _, st := range from {
			if is.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrInvalidStatusTransition
		}
		is.Status = to
		is.UpdatedAt = at
		out = *is
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) MarkIssueFlagged(ctx context.Context, id, adminID string, at time.Time) (*models.Issue, error) {
	var out models.Issue
	err := s.mutate(ctx, func() error {
		is, ok := s.issues[id]
		if !ok {
			return ErrIssueNotFound
		}
		if is.ReportedAsFake {
			return ErrAlreadyFlagged
		}
		ts := at
		is.ReportedAsFake = true
		is.ReportedAsFakeBy = adminID
		is.ReportedAsFakeAt = &ts
		is.UpdatedAt = at
		out = *is
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Users

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	c := *u
	c.Email = models.NormalizeEmail(u.Email)
	return s.mutate(ctx, func() error {
		for _, existing := range s.users {
			if existing.Email == c.Email {
				return ErrEmailExists
			}
		}
		s.users[c.ID] = &c
		return nil
	})
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = models.NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) SetTrustScore(ctx context.Context, id string, score int, at time.Time) error {
	return s.mutate(ctx, func() error {
		u, ok := s.users[id]
		if !ok {
			return ErrUserNotFound
		}
		u.TrustScore = score
		u.UpdatedAt = at
		return nil
	})
}

func (s *MemoryStore) BanSubmitter(ctx context.Context, ban *models.BannedEmail) error {
	c := *ban
	c.Email = models.NormalizeEmail(ban.Email)
	return s.mutate(ctx, func() error {
		if _, exists := s.banned[c.Email]; exists {
			log.Printf("[store] %s already banned, keeping existing record", c.Email)
		} else {
			s.banned[c.Email] = &c
		}
		delete(s.users, c.UserID)
		return nil
	})
}

func (s *MemoryStore) IsEmailBanned(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.banned[models.NormalizeEmail(email)]
	return ok, nil
}

func (s *MemoryStore) ListBannedEmails(ctx context.Context) ([]models.BannedEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.BannedEmail, 0, len(s.banned))
	for _, b := range s.banned {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BannedAt.After(out[j].BannedAt) })
	return out, nil
}
