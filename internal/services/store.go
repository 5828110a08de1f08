package services

import (
	"context"
	"time"

	"github.com/civicpulse/backend/internal/models"
)

// IssueFilter narrows ListIssues. Zero value lists everything.
type IssueFilter struct {
	ReportedBy     string
	UnresolvedOnly bool
	Limit          int64
}

// IssueStore persists issues. Results are ordered by priority score
// descending, then newest first.
type IssueStore interface {
	// LatestIssueBy returns the submitter's newest issue, or nil if none.
	LatestIssueBy(ctx context.Context, userID string) (*models.Issue, error)
	CountIssuesSince(ctx context.Context, userID string, since time.Time) (int64, error)
	CountIssuesInBox(ctx context.Context, box models.GeoBox) (int64, error)
	CountUnresolved(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)

	InsertIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, error)

	// UpdateIssueStatus sets the status only if the current status is in from.
	// It returns ErrInvalidStatusTransition when the issue exists but is not.
	UpdateIssueStatus(ctx context.Context, id string, from []models.IssueStatus, to models.IssueStatus, at time.Time) (*models.Issue, error)
	// MarkIssueFlagged sets the fraud flag if it is not already set, and
	// returns ErrAlreadyFlagged otherwise.
	MarkIssueFlagged(ctx context.Context, id, adminID string, at time.Time) (*models.Issue, error)
}

// UserStore persists accounts and banned-email tombstones. Emails are stored
// and looked up in models.NormalizeEmail form.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetTrustScore(ctx context.Context, id string, score int, at time.Time) error

	// BanSubmitter records the tombstone and deletes the account as one unit.
	// If a tombstone for the email already exists the account is still
	// deleted, since the ban is already durable.
	BanSubmitter(ctx context.Context, ban *models.BannedEmail) error
	IsEmailBanned(ctx context.Context, email string) (bool, error)
	ListBannedEmails(ctx context.Context) ([]models.BannedEmail, error)
}

// Store is everything the services need from persistence.
type Store interface {
	IssueStore
	UserStore

	// RunInTransaction runs fn atomically. fn may be retried, so it must not
	// have side effects outside the store.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// LockSubmitter and LockCells make concurrent transactions touching the
	// same submitter or the same grid cells conflict with each other.
	LockSubmitter(ctx context.Context, userID string) error
	LockCells(ctx context.Context, keys []string) error

	Close(ctx context.Context) error
}
