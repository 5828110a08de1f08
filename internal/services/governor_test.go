package services

import (
	"context"
	"testing"
	"time"

	"github.com/civicpulse/backend/internal/models"
)

var here = models.GeoPoint{Lat: 12.9716, Lng: 77.5946}

func newTestGovernor(s IssueStore, loc *time.Location, now time.Time) *SubmissionGovernor {
	g := NewSubmissionGovernor(s, DefaultGovernorConfig(), loc)
	g.now = func() time.Time { return now }
	return g
}

func policyKind(t *testing.T, err error) PolicyKind {
	t.Helper()
	pe, ok := AsPolicyError(err)
	if !ok {
		t.Fatalf("expected *PolicyError, got %v", err)
	}
	return pe.Kind
}

func TestGovernorAllowsFirstSubmission(t *testing.T) {
	g := newTestGovernor(NewMemoryStore(), time.UTC, testNow)
	if err := g.Check(context.Background(), "u1", here); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestGovernorCooldown(t *testing.T) {
	tests := []struct {
		name    string
		ago     time.Duration
		blocked bool
		minutes int
	}{
		{"just now", 0, true, 30},
		{"ten minutes", 10 * time.Minute, true, 20},
		{"ten and a half", 10*time.Minute + 30*time.Second, true, 20},
		{"one second left", 30*time.Minute - time.Second, true, 1},
		{"expired", 30 * time.Minute, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			seedIssue(t, s, "i1", "u1", testNow.Add(-tt.ago), models.GeoPoint{Lat: 40, Lng: 40}, models.StatusPending, 50)

			err := newTestGovernor(s, time.UTC, testNow).Check(context.Background(), "u1", here)
			if !tt.blocked {
				if err != nil {
					t.Fatalf("Check: %v", err)
				}
				return
			}
			if policyKind(t, err) != PolicyCooldown {
				t.Fatalf("kind = %v, want cooldown", err)
			}
			pe, _ := AsPolicyError(err)
			if pe.RemainingMinutes != tt.minutes {
				t.Errorf("remaining = %d, want %d", pe.RemainingMinutes, tt.minutes)
			}
		})
	}
}

func TestGovernorCooldownIsPerSubmitter(t *testing.T) {
	s := NewMemoryStore()
	seedIssue(t, s, "i1", "u1", testNow, models.GeoPoint{Lat: 40, Lng: 40}, models.StatusPending, 50)

	if err := newTestGovernor(s, time.UTC, testNow).Check(context.Background(), "u2", here); err != nil {
		t.Fatalf("other submitter blocked: %v", err)
	}
}

func TestGovernorDailyCap(t *testing.T) {
	s := NewMemoryStore()
	far := models.GeoPoint{Lat: 40, Lng: 40}
	// Five today, all past the cooldown.
	for i, h := range []int{9, 10, 11, 12, 13} {
		at := time.Date(2024, 5, 1, h, 0, 0, 0, time.UTC)
		seedIssue(t, s, string(rune('a'+i)), "u1", at, far, models.StatusPending, 50)
	}

	err := newTestGovernor(s, time.UTC, testNow).Check(context.Background(), "u1", here)
	if policyKind(t, err) != PolicyDailyLimit {
		t.Fatalf("kind = %v, want daily limit", err)
	}
}

func TestGovernorDailyCapResetsAtMidnight(t *testing.T) {
	s := NewMemoryStore()
	far := models.GeoPoint{Lat: 40, Lng: 40}
	seedIssue(t, s, "y", "u1", time.Date(2024, 4, 30, 23, 0, 0, 0, time.UTC), far, models.StatusPending, 50)
	for i, h := range []int{9, 10, 11, 12} {
		at := time.Date(2024, 5, 1, h, 0, 0, 0, time.UTC)
		seedIssue(t, s, string(rune('a'+i)), "u1", at, far, models.StatusPending, 50)
	}

	if err := newTestGovernor(s, time.UTC, testNow).Check(context.Background(), "u1", here); err != nil {
		t.Fatalf("yesterday's issue counted against today: %v", err)
	}
}

func TestGovernorDailyCapUsesConfiguredZone(t *testing.T) {
	s := NewMemoryStore()
	far := models.GeoPoint{Lat: 40, Lng: 40}
	// 17:00-17:40 UTC on May 1 is 22:30-23:10 on May 1 in UTC+5:30.
	for i := 0; i < 5; i++ {
		at := time.Date(2024, 5, 1, 17, 10*i, 0, 0, time.UTC)
		seedIssue(t, s, string(rune('a'+i)), "u1", at, far, models.StatusPending, 50)
	}
	// 20:00 UTC is 01:30 on May 2 in UTC+5:30.
	now := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	ist := time.FixedZone("IST", 5*3600+1800)

	if err := newTestGovernor(s, ist, now).Check(context.Background(), "u1", here); err != nil {
		t.Errorf("local day rolled over, want allowed: %v", err)
	}
	if err := newTestGovernor(s, time.UTC, now).Check(context.Background(), "u1", here); policyKind(t, err) != PolicyDailyLimit {
		t.Errorf("same UTC day, want daily limit, got %v", err)
	}
}

func TestGovernorLocationSaturation(t *testing.T) {
	s := NewMemoryStore()
	old := testNow.Add(-48 * time.Hour)
	for i := 0; i < 7; i++ {
		p := models.GeoPoint{Lat: here.Lat + float64(i)*0.00005, Lng: here.Lng - float64(i)*0.00005}
		seedIssue(t, s, string(rune('a'+i)), "other", old, p, models.StatusPending, 50)
	}
	// Outside the box.
	seedIssue(t, s, "far", "other", old, models.GeoPoint{Lat: here.Lat + 0.001, Lng: here.Lng}, models.StatusPending, 50)

	g := newTestGovernor(s, time.UTC, testNow)
	if err := g.Check(context.Background(), "u1", here); err != nil {
		t.Fatalf("7 nearby should be accepted: %v", err)
	}

	seedIssue(t, s, "h", "other", old, here, models.StatusResolved, 50)
	if err := g.Check(context.Background(), "u1", here); policyKind(t, err) != PolicyLocationSaturated {
		t.Fatalf("8 nearby, want saturated, got %v", err)
	}
}

func TestGovernorCheckOrder(t *testing.T) {
	s := NewMemoryStore()
	// Five today, the last one inside the cooldown: cooldown must win.
	for i, m := range []int{0, 60, 120, 180, 290} {
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(m) * time.Minute)
		seedIssue(t, s, string(rune('a'+i)), "u1", at, here, models.StatusPending, 50)
	}
	err := newTestGovernor(s, time.UTC, testNow).Check(context.Background(), "u1", here)
	if policyKind(t, err) != PolicyCooldown {
		t.Fatalf("kind = %v, want cooldown first", err)
	}
}

func TestGovernorLockKeysShareCell(t *testing.T) {
	g := NewSubmissionGovernor(NewMemoryStore(), DefaultGovernorConfig(), time.UTC)
	a := here
	b := models.GeoPoint{Lat: here.Lat + 0.0004, Lng: here.Lng + 0.0004}
	if !g.Box(a).Contains(b) {
		t.Fatal("test points should be inside each other's box")
	}

	ka := map[string]bool{}
	for _, k := range g.LockKeys(a) {
		ka[k] = true
	}
	for _, k := range g.LockKeys(b) {
		if ka[k] {
			return
		}
	}
	t.Errorf("lock keys %v and %v are disjoint", g.LockKeys(a), g.LockKeys(b))
}

func TestPolicyErrorMessages(t *testing.T) {
	tests := []struct {
		err  *PolicyError
		want string
	}{
		{&PolicyError{Kind: PolicyCooldown, RemainingMinutes: 12}, "Please wait 12 minutes before reporting another issue"},
		{&PolicyError{Kind: PolicyDailyLimit}, "Daily issue limit reached"},
		{&PolicyError{Kind: PolicyLocationSaturated}, "Multiple issues already reported at this location. Please support existing reports."},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
