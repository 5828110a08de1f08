package services

import "github.com/civicpulse/backend/internal/models"

const (
	HighPriorityThreshold   = 70
	MediumPriorityThreshold = 45

	// TimePendingScore is fixed at submission time and never recomputed.
	TimePendingScore = 10

	// Weights in tenths: 50% severity, 30% location, 10% frequency, 10% time.
	weightSeverity       = 5
	weightLocationImpact = 3
	weightFrequency      = 1
	weightTimePending    = 1
)

// FrequencyScore tiers the number of currently unresolved issues.
func FrequencyScore(unresolved int64) int {
	switch {
	case unresolved >= 7:
		return 100
	case unresolved >= 4:
		return 75
	case unresolved >= 2:
		return 50
	}
	return 20
}

// LabelFor maps a final score to its priority label.
func LabelFor(score int) models.PriorityLabel {
	switch {
	case score >= HighPriorityThreshold:
		return models.PriorityHigh
	case score >= MediumPriorityThreshold:
		return models.PriorityMedium
	}
	return models.PriorityLow
}

// ComputePriority combines the breakdown terms into the final 0-100 score.
// b.Severity is already on the 10-100 scale.
func ComputePriority(b models.ScoreBreakdown) (int, models.PriorityLabel) {
	tenths := b.Severity*weightSeverity +
		b.LocationImpact*weightLocationImpact +
		b.Frequency*weightFrequency +
		b.TimePending*weightTimePending
	// Integer half-up rounding; every term is non-negative.
	base := (tenths + 5) / 10
	final := clampInt(base+b.AIAdjustment, 0, 100)
	return final, LabelFor(final)
}

// BuildBreakdown assembles the persisted breakdown from pipeline outputs.
func BuildBreakdown(c Classification, locationImpact int, unresolved int64) models.ScoreBreakdown {
	return models.ScoreBreakdown{
		Severity:       c.Severity * 10,
		Frequency:      FrequencyScore(unresolved),
		LocationImpact: locationImpact,
		TimePending:    TimePendingScore,
		AIAdjustment:   c.UrgencyBoost,
	}
}
