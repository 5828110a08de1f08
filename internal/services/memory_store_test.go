package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/civicpulse/backend/internal/models"
)

func TestMemoryStoreTransactionRollback(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedUser(t, s, "u1", "a@example.com", 100)

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.InsertIssue(ctx, &models.Issue{ID: "i1", ReportedBy: "u1", Status: models.StatusPending}); err != nil {
			return err
		}
		if err := s.SetTrustScore(ctx, "u1", 10, testNow); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	if _, err := s.GetIssue(ctx, "i1"); !errors.Is(err, ErrIssueNotFound) {
		t.Errorf("issue survived rollback: %v", err)
	}
	u, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.TrustScore != 100 {
		t.Errorf("trust = %d after rollback, want 100", u.TrustScore)
	}
}

func TestMemoryStoreNestedTransaction(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			return s.InsertIssue(ctx, &models.Issue{ID: "i1", Status: models.StatusPending})
		})
	})
	if err != nil {
		t.Fatalf("nested transaction: %v", err)
	}
	if _, err := s.GetIssue(ctx, "i1"); err != nil {
		t.Errorf("GetIssue: %v", err)
	}
}

func TestMemoryStoreListOrderAndFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedIssue(t, s, "low", "u1", testNow.Add(-3*time.Hour), here, models.StatusPending, 30)
	seedIssue(t, s, "high-old", "u2", testNow.Add(-2*time.Hour), here, models.StatusPending, 80)
	seedIssue(t, s, "high-new", "u1", testNow.Add(-1*time.Hour), here, models.StatusInProgress, 80)
	seedIssue(t, s, "done", "u1", testNow, here, models.StatusResolved, 99)

	all, err := s.ListIssues(ctx, IssueFilter{})
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []string{"done", "high-new", "high-old", "low"}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Fatalf("order = %v, want %v", ids(all), wantOrder)
		}
	}

	open, _ := s.ListIssues(ctx, IssueFilter{UnresolvedOnly: true, Limit: 2})
	if got := ids(open); len(got) != 2 || got[0] != "high-new" || got[1] != "high-old" {
		t.Errorf("unresolved top 2 = %v", got)
	}

	mine, _ := s.ListIssues(ctx, IssueFilter{ReportedBy: "u1"})
	if len(mine) != 3 {
		t.Errorf("u1 has %d issues, want 3", len(mine))
	}

	n, _ := s.CountUnresolved(ctx)
	if n != 3 {
		t.Errorf("CountUnresolved = %d, want 3", n)
	}
}

func ids(issues []models.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.ID
	}
	return out
}

func TestMemoryStoreStatusConflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedIssue(t, s, "i1", "u1", testNow, here, models.StatusResolved, 50)

	_, err := s.UpdateIssueStatus(ctx, "i1", []models.IssueStatus{models.StatusPending}, models.StatusInProgress, testNow)
	if !errors.Is(err, ErrInvalidStatusTransition) {
		t.Errorf("err = %v, want ErrInvalidStatusTransition", err)
	}
	_, err = s.UpdateIssueStatus(ctx, "missing", []models.IssueStatus{models.StatusPending}, models.StatusInProgress, testNow)
	if !errors.Is(err, ErrIssueNotFound) {
		t.Errorf("err = %v, want ErrIssueNotFound", err)
	}
}

func TestMemoryStoreEmailsAreNormalized(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedUser(t, s, "u1", "Alice@Example.com", 100)

	if _, err := s.GetUserByEmail(ctx, " alice@example.COM"); err != nil {
		t.Errorf("lookup by other case: %v", err)
	}
	err := s.CreateUser(ctx, &models.User{ID: "u2", Email: "ALICE@example.com"})
	if !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate err = %v, want ErrEmailExists", err)
	}
}

func TestMemoryStoreBanKeepsFirstTombstone(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedUser(t, s, "u1", "a@example.com", 0)

	first := &models.BannedEmail{ID: "b1", Email: "a@example.com", UserID: "old", Reason: "first", BannedAt: testNow.Add(-time.Hour)}
	if err := s.BanSubmitter(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &models.BannedEmail{ID: "b2", Email: "A@example.com", UserID: "u1", Reason: "second", BannedAt: testNow}
	if err := s.BanSubmitter(ctx, second); err != nil {
		t.Fatalf("second ban: %v", err)
	}

	bans, _ := s.ListBannedEmails(ctx)
	if len(bans) != 1 || bans[0].Reason != "first" {
		t.Errorf("bans = %+v, want the first tombstone only", bans)
	}
	if _, err := s.GetUser(ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("account survived ban: %v", err)
	}
}

func TestPersistentMemoryStoreReload(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewPersistentMemoryStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	seedUser(t, s, "u1", "a@example.com", 75)
	seedIssue(t, s, "i1", "u1", testNow, here, models.StatusPending, 61)
	if err := s.BanSubmitter(ctx, &models.BannedEmail{ID: "b1", Email: "x@example.com", Reason: "test", BannedAt: testNow}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewPersistentMemoryStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	u, err := reopened.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.PasswordHash != "hash-u1" || u.TrustScore != 75 {
		t.Errorf("user after reload = %+v", u)
	}
	is, err := reopened.GetIssue(ctx, "i1")
	if err != nil {
		t.Fatal(err)
	}
	if is.PriorityScore != 61 || !is.CreatedAt.Equal(testNow) {
		t.Errorf("issue after reload = %+v", is)
	}
	if banned, _ := reopened.IsEmailBanned(ctx, "X@example.com"); !banned {
		t.Error("ban lost on reload")
	}
}

func newUnwritableStore(t *testing.T) (*MemoryStore, func()) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "data")
	s, err := NewPersistentMemoryStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	seedUser(t, s, "u1", "a@example.com", 25)
	seedIssue(t, s, "i1", "u1", testNow, here, models.StatusPending, 50)
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	restore := func() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	return s, restore
}

func TestPersistentMemoryStoreUnsavedWriteRollsBack(t *testing.T) {
	s, _ := newUnwritableStore(t)
	ctx := context.Background()

	u := &models.User{ID: "u2", Email: "b@example.com", TrustScore: 100}
	if err := s.CreateUser(ctx, u); err == nil {
		t.Fatal("CreateUser succeeded without a snapshot")
	}
	if _, err := s.GetUser(ctx, "u2"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unsaved user visible: %v", err)
	}

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.UpdateIssueStatus(ctx, "i1", []models.IssueStatus{models.StatusPending}, models.StatusInProgress, testNow)
		return err
	})
	if err == nil {
		t.Fatal("transaction committed without a snapshot")
	}
	is, _ := s.GetIssue(ctx, "i1")
	if is.Status != models.StatusPending {
		t.Errorf("status = %s after failed commit, want Pending", is.Status)
	}
}

func TestFlagAsFraudUnsavedBanRollsBack(t *testing.T) {
	s, restore := newUnwritableStore(t)
	ctx := context.Background()
	n := &recordingNotifier{}
	ledger := newTestLedger(s, n)

	if _, err := ledger.FlagAsFraud(ctx, "i1", "admin-1"); err == nil {
		t.Fatal("FlagAsFraud succeeded without a snapshot")
	}
	if _, err := s.GetUser(ctx, "u1"); err != nil {
		t.Errorf("account deleted by failed ban: %v", err)
	}
	if is, _ := s.GetIssue(ctx, "i1"); is.ReportedAsFake {
		t.Error("issue flagged by failed ban")
	}
	if banned, _ := s.IsEmailBanned(ctx, "a@example.com"); banned {
		t.Error("tombstone written by failed ban")
	}
	if len(n.bans) != 0 {
		t.Errorf("notice sent for failed ban: %+v", n.bans)
	}

	restore()
	res, err := ledger.FlagAsFraud(ctx, "i1", "admin-1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !res.User.Banned {
		t.Errorf("retry result = %+v", res.User)
	}
}
