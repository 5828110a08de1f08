package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/civicpulse/backend/internal/models"
)

// pngBytes sniffs as image/png.
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

var testNow = time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, s Store, id, email string, trust int) *models.User {
	t.Helper()
	u := &models.User{
		ID:           id,
		Name:         "User " + id,
		Email:        email,
		PasswordHash: "hash-" + id,
		Role:         models.RoleUser,
		TrustScore:   trust,
		CreatedAt:    testNow.Add(-24 * time.Hour),
		UpdatedAt:    testNow.Add(-24 * time.Hour),
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func seedIssue(t *testing.T, s Store, id, reportedBy string, at time.Time, p models.GeoPoint, status models.IssueStatus, score int) {
	t.Helper()
	is := &models.Issue{
		ID:            id,
		Title:         "Issue " + id,
		Description:   "seeded",
		Location:      p,
		Category:      "Other",
		Priority:      LabelFor(score),
		PriorityScore: score,
		Status:        status,
		ReportedBy:    reportedBy,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
	if err := s.InsertIssue(context.Background(), is); err != nil {
		t.Fatalf("seed issue %s: %v", id, err)
	}
}

type memImageStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	deleted []string
}

func newMemImageStore() *memImageStore {
	return &memImageStore{saved: make(map[string][]byte)}
}

func (m *memImageStore) Save(ctx context.Context, data []byte, contentType string) (*StoredImage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := newImageName(contentType)
	m.saved[name] = data
	return &StoredImage{Key: name, URL: "/uploads/" + name}, nil
}

func (m *memImageStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memImageStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type stubScreener struct {
	err error
}

func (s stubScreener) Screen(ctx context.Context, data []byte) error { return s.err }

type recordingNotifier struct {
	mu   sync.Mutex
	bans []models.BannedEmail
	err  error
}

func (n *recordingNotifier) NotifyBanned(ctx context.Context, ban models.BannedEmail) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bans = append(n.bans, ban)
	return n.err
}
