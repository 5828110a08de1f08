package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/civicpulse/backend/internal/models"
)

// GovernorConfig holds the admission limits for new submissions.
type GovernorConfig struct {
	Cooldown time.Duration
	DailyCap int64
	// GeoOffset is the half-width of the duplicate box in degrees.
	GeoOffset    float64
	GeoThreshold int64
}

// DefaultGovernorConfig: 30 minute cooldown, 5 per day, 8 per ~50 m box.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		Cooldown:     30 * time.Minute,
		DailyCap:     5,
		GeoOffset:    0.00045,
		GeoThreshold: 8,
	}
}

// SubmissionGovernor decides whether a submitter may file a new issue at a
// point, independent of what the issue says.
type SubmissionGovernor struct {
	store IssueStore
	cfg   GovernorConfig
	loc   *time.Location
	now   func() time.Time
}

func NewSubmissionGovernor(store IssueStore, cfg GovernorConfig, loc *time.Location) *SubmissionGovernor {
	if loc == nil {
		loc = time.Local
	}
	return &SubmissionGovernor{store: store, cfg: cfg, loc: loc, now: time.Now}
}

// Check runs cooldown, daily cap and location saturation in that order and
// returns the first *PolicyError, or nil if the submission may proceed.
func (g *SubmissionGovernor) Check(ctx context.Context, userID string, at models.GeoPoint) error {
	now := g.now()

	last, err := g.store.LatestIssueBy(ctx, userID)
	if err != nil {
		return fmt.Errorf("governor: latest issue: %w", err)
	}
	if last != nil {
		if remaining := g.cooldownRemaining(last.CreatedAt, now); remaining > 0 {
			log.Printf("[governor] cooldown user=%s remaining=%dm", userID, remaining)
			return &PolicyError{Kind: PolicyCooldown, RemainingMinutes: remaining}
		}
	}

	today, err := g.store.CountIssuesSince(ctx, userID, g.startOfDay(now))
	if err != nil {
		return fmt.Errorf("governor: daily count: %w", err)
	}
	if today >= g.cfg.DailyCap {
		log.Printf("[governor] daily limit user=%s count=%d", userID, today)
		return &PolicyError{Kind: PolicyDailyLimit}
	}

	nearby, err := g.store.CountIssuesInBox(ctx, g.Box(at))
	if err != nil {
		return fmt.Errorf("governor: nearby count: %w", err)
	}
	if nearby >= g.cfg.GeoThreshold {
		log.Printf("[governor] location saturated lat=%.6f lng=%.6f count=%d", at.Lat, at.Lng, nearby)
		return &PolicyError{Kind: PolicyLocationSaturated}
	}

	return nil
}

// Box is the duplicate-suppression box around p.
func (g *SubmissionGovernor) Box(p models.GeoPoint) models.GeoBox {
	return models.BoxAround(p, g.cfg.GeoOffset)
}

// LockKeys names the grid cells a submission at p must lock so that any
// concurrent submission whose box could count it conflicts with it.
func (g *SubmissionGovernor) LockKeys(p models.GeoPoint) []string {
	return g.Box(p).CellKeys(2 * g.cfg.GeoOffset)
}

// cooldownRemaining returns whole minutes left, rounded up, or 0 if the
// cooldown has passed.
func (g *SubmissionGovernor) cooldownRemaining(last, now time.Time) int {
	elapsed := now.Sub(last)
	if elapsed >= g.cfg.Cooldown {
		return 0
	}
	full := int(math.Ceil(g.cfg.Cooldown.Minutes()))
	remaining := int(math.Ceil((g.cfg.Cooldown - elapsed).Minutes()))
	return clampInt(remaining, 1, full)
}

func (g *SubmissionGovernor) startOfDay(t time.Time) time.Time {
	y, m, d := t.In(g.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, g.loc)
}
