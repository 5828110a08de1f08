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

// IssueDeps wires an IssueService. Screener may be nil.
type IssueDeps struct {
	Store      Store
	Governor   *SubmissionGovernor
	Classifier Classifier
	Impact     LocationImpact
	Images     ImageStore
	Screener   ImageScreener
}

// IssueService runs the intake pipeline and the admin issue operations.
type IssueService struct {
	store      Store
	governor   *SubmissionGovernor
	classifier Classifier
	impact     LocationImpact
	images     ImageStore
	screener   ImageScreener
	now        func() time.Time
	newID      func() string
}

func NewIssueService(d IssueDeps) *IssueService {
	impact := d.Impact
	if impact == nil {
		impact = NewKeywordLocationImpact()
	}
	return &IssueService{
		store:      d.Store,
		governor:   d.Governor,
		classifier: d.Classifier,
		impact:     impact,
		images:     d.Images,
		screener:   d.Screener,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
}

// Create turns a submission into a scored, persisted issue. Nothing is
// written unless every check passes.
func (s *IssueService) Create(ctx context.Context, userID string, req *models.CreateIssueRequest, image []byte) (*models.Issue, error) {
	errs := ValidationErrors(req.Validate())
	contentType, err := SniffImage(image)
	if errors.Is(err, ErrImageRequired) {
		errs["image"] = "Image is required"
	} else if err != nil {
		errs["image"] = "Image must be a JPEG, PNG, GIF or WebP file"
	}
	if len(errs) > 0 {
		return nil, errs
	}
	point, _ := req.Point()

	// Tokens outlive accounts; a purged submitter must not keep reporting.
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	if err := s.governor.Check(ctx, userID, point); err != nil {
		return nil, err
	}

	if s.screener != nil {
		if err := s.screener.Screen(ctx, image); errors.Is(err, ErrImageRejected) {
			log.Printf("[CreateIssue] image rejected user=%s", userID)
			return nil, ValidationErrors{"image": ErrImageRejected.Error()}
		} else if err != nil {
			log.Printf("[moderation] screening unavailable, accepting image: %v", err)
		}
	}

	cls, err := s.classifier.Classify(ctx, req.Title+". "+req.Description)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	impact := s.impact.Estimate(req.Description, point)

	stored, err := s.images.Save(ctx, image, contentType)
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}

	var issue *models.Issue
	err = s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.store.LockSubmitter(ctx, userID); err != nil {
			return err
		}
		if err := s.store.LockCells(ctx, s.governor.LockKeys(point)); err != nil {
			return err
		}
		// Re-check under the locks; the first check may have raced.
		if err := s.governor.Check(ctx, userID, point); err != nil {
			return err
		}

		unresolved, err := s.store.CountUnresolved(ctx)
		if err != nil {
			return err
		}
		breakdown := BuildBreakdown(cls, impact, unresolved)
		score, label := ComputePriority(breakdown)

		now := s.now().UTC()
		issue = &models.Issue{
			ID:             s.newID(),
			Title:          req.Title,
			Description:    req.Description,
			ImageURL:       stored.URL,
			Location:       point,
			Category:       cls.Category,
			Priority:       label,
			PriorityScore:  score,
			ScoreBreakdown: breakdown,
			Explanation:    cls.Explanation,
			ClassifiedBy:   cls.Source,
			Status:         models.StatusPending,
			ReportedBy:     userID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.store.InsertIssue(ctx, issue)
	})
	if err != nil {
		if derr := s.images.Delete(context.WithoutCancel(ctx), stored.Key); derr != nil {
			log.Printf("[CreateIssue] orphaned image %s: %v", stored.Key, derr)
		}
		return nil, err
	}

	log.Printf("[CreateIssue] issue=%s user=%s score=%d priority=%s category=%s via=%s",
		issue.ID, userID, issue.PriorityScore, issue.Priority, issue.Category, issue.ClassifiedBy)
	return issue, nil
}

func (s *IssueService) Get(ctx context.Context, id string) (*models.Issue, error) {
	return s.store.GetIssue(ctx, id)
}

// ListAll returns every issue, highest priority first.
func (s *IssueService) ListAll(ctx context.Context) ([]models.Issue, error) {
	return s.store.ListIssues(ctx, IssueFilter{})
}

// ListByPriority is the admin work queue: unresolved issues, highest first.
func (s *IssueService) ListByPriority(ctx context.Context, limit int64) ([]models.Issue, error) {
	return s.store.ListIssues(ctx, IssueFilter{UnresolvedOnly: true, Limit: limit})
}

func (s *IssueService) ListMine(ctx context.Context, userID string) ([]models.Issue, error) {
	return s.store.ListIssues(ctx, IssueFilter{ReportedBy: userID})
}

// UpdateStatus moves an issue forward along Pending -> In Progress -> Resolved.
func (s *IssueService) UpdateStatus(ctx context.Context, id string, next models.IssueStatus) (*models.Issue, error) {
	if !next.Valid() {
		return nil, ValidationErrors{"status": "Status must be Pending, In Progress or Resolved"}
	}
	from := next.Predecessors()
	if len(from) == 0 {
		if _, err := s.store.GetIssue(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidStatusTransition
	}

	issue, err := s.store.UpdateIssueStatus(ctx, id, from, next, s.now().UTC())
	if err != nil {
		return nil, err
	}
	log.Printf("[UpdateStatus] issue=%s status=%s", id, next)
	return issue, nil
}

// Stats counts issues per status, listing every status even when empty.
func (s *IssueService) Stats(ctx context.Context) (*models.IssueStats, error) {
	rows, err := s.store.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.IssueStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}

	out := &models.IssueStats{}
	for _, st := range []models.IssueStatus{models.StatusPending, models.StatusInProgress, models.StatusResolved} {
		out.ByStatus = append(out.ByStatus, models.StatusCount{Status: st, Count: counts[st]})
		out.Total += counts[st]
	}
	return out, nil
}
