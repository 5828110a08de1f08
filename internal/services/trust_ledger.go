package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/civicpulse/backend/internal/models"
)

// FraudPenalty is subtracted from a submitter's trust for each fake report.
const FraudPenalty = 25

// BanNotifier tells a banned submitter what happened. Failures never undo a ban.
type BanNotifier interface {
	NotifyBanned(ctx context.Context, ban models.BannedEmail) error
}

// TrustLedger applies fraud penalties and bans submitters whose trust runs out.
type TrustLedger struct {
	store    Store
	notifier BanNotifier
	now      func() time.Time
	newID    func() string
}

// NewTrustLedger creates a ledger. notifier may be nil.
func NewTrustLedger(store Store, notifier BanNotifier) *TrustLedger {
	return &TrustLedger{
		store:    store,
		notifier: notifier,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// FlagAsFraud marks the issue fake on behalf of adminID and penalizes its
// submitter. The flag, the trust change and any ban commit together.
func (l *TrustLedger) FlagAsFraud(ctx context.Context, issueID, adminID string) (*models.FraudFlagResult, error) {
	var (
		issue *models.Issue
		state models.TrustState
		ban   *models.BannedEmail
	)

	err := l.store.RunInTransaction(ctx, func(ctx context.Context) error {
		issue, ban = nil, nil
		now := l.now().UTC()

		flagged, err := l.store.MarkIssueFlagged(ctx, issueID, adminID, now)
		if err != nil {
			return err
		}

		user, err := l.store.GetUser(ctx, flagged.ReportedBy)
		if errors.Is(err, ErrUserNotFound) {
			return ErrSubmitterNotFound
		}
		if err != nil {
			return fmt.Errorf("trust: load submitter: %w", err)
		}

		score := user.TrustScore - FraudPenalty
		if score < 0 {
			score = 0
		}

		if score == 0 {
			b := &models.BannedEmail{
				ID:       l.newID(),
				Email:    models.NormalizeEmail(user.Email),
				UserID:   user.ID,
				UserName: user.Name,
				Reason:   models.DefaultBanReason,
				BannedBy: adminID,
				BannedAt: now,
			}
			if err := l.store.BanSubmitter(ctx, b); err != nil {
				return fmt.Errorf("trust: ban submitter: %w", err)
			}
			ban = b
		} else if err := l.store.SetTrustScore(ctx, user.ID, score, now); err != nil {
			return fmt.Errorf("trust: update score: %w", err)
		}

		user.TrustScore = score
		state = models.TrustStateOf(user)
		state.Banned = ban != nil
		state.Deleted = ban != nil
		issue = flagged
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &models.FraudFlagResult{Issue: *issue, User: state}
	if ban != nil {
		log.Printf("[trust] banned user=%s email=%s by=%s issue=%s", ban.UserID, ban.Email, adminID, issueID)
		res.Message = fmt.Sprintf("Issue reported as fake. User's trust score reduced to 0. User has been permanently banned and deleted from the system. Email %s is now blacklisted.", ban.Email)
		l.notify(ctx, *ban)
	} else {
		log.Printf("[trust] penalized user=%s trust=%d by=%s issue=%s", state.UserID, state.TrustScore, adminID, issueID)
		res.Message = fmt.Sprintf("Issue reported as fake. User's trust score reduced to %d.", state.TrustScore)
	}
	return res, nil
}

func (l *TrustLedger) notify(ctx context.Context, ban models.BannedEmail) {
	if l.notifier == nil {
		return
	}
	if err := l.notifier.NotifyBanned(ctx, ban); err != nil {
		log.Printf("[trust] ban notice failed email=%s err=%v", ban.Email, err)
	}
}
