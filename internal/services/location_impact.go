package services

import (
	"strings"

	"github.com/civicpulse/backend/internal/models"
)

// LocationImpact scores how critical the surroundings of a report are, 0-100.
type LocationImpact interface {
	Estimate(description string, at models.GeoPoint) int
}

type ImpactTier struct {
	Score    int
	Keywords []string
}

// KeywordLocationImpact infers impact from places named in the description.
// It does not look at the coordinates.
type KeywordLocationImpact struct {
	Tiers   []ImpactTier
	Default int
}

func NewKeywordLocationImpact() *KeywordLocationImpact {
	return &KeywordLocationImpact{
		Tiers: []ImpactTier{
			{Score: 90, Keywords: []string{"hospital", "school"}},
			{Score: 75, Keywords: []string{"station", "main road"}},
			{Score: 65, Keywords: []string{"market"}},
		},
		Default: 40,
	}
}

func (k *KeywordLocationImpact) Estimate(description string, _ models.GeoPoint) int {
	lower := strings.ToLower(description)
	for _, tier := range k.Tiers {
		if len(matches(lower, tier.Keywords)) > 0 {
			return tier.Score
		}
	}
	return k.Default
}
