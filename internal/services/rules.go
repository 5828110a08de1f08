package services

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules/classifier.yaml
var builtinRules []byte

// RuleSet is the keyword table behind RuleClassifier.
type RuleSet struct {
	Limits          RuleLimits     `yaml:"limits"`
	DefaultCategory string         `yaml:"default_category"`
	Categories      []CategoryRule `yaml:"categories"`
	Severity        SeverityRules  `yaml:"severity"`
	Boosts          []BoostRule    `yaml:"boosts"`
}

type RuleLimits struct {
	MinSeverity int `yaml:"min_severity"`
	MaxSeverity int `yaml:"max_severity"`
	MaxBoost    int `yaml:"max_boost"`
}

type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type SeverityRules struct {
	Neutral            int            `yaml:"neutral"`
	NeutralExplanation string         `yaml:"neutral_explanation"`
	Tiers              []SeverityTier `yaml:"tiers"`
}

type SeverityTier struct {
	Name        string   `yaml:"name"`
	Base        int      `yaml:"base"`
	MaxBonus    int      `yaml:"max_bonus"`
	Explanation string   `yaml:"explanation"`
	Keywords    []string `yaml:"keywords"`
}

// BoostRule adds Points to the urgency boost (and Severity to severity) for
// every matching keyword, or only once when Once is set.
type BoostRule struct {
	Name        string   `yaml:"name"`
	Points      int      `yaml:"points"`
	Severity    int      `yaml:"severity"`
	Once        bool     `yaml:"once"`
	Unless      string   `yaml:"unless"`
	Explanation string   `yaml:"explanation"`
	Keywords    []string `yaml:"keywords"`
}

// LoadRuleSet parses and sanity-checks a YAML rule table.
func LoadRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	if rs.Limits.MinSeverity < 1 || rs.Limits.MaxSeverity < rs.Limits.MinSeverity {
		return nil, fmt.Errorf("rules: invalid severity limits %d..%d", rs.Limits.MinSeverity, rs.Limits.MaxSeverity)
	}
	if rs.Limits.MaxBoost < 0 {
		return nil, fmt.Errorf("rules: invalid max_boost %d", rs.Limits.MaxBoost)
	}
	if rs.DefaultCategory == "" {
		return nil, fmt.Errorf("rules: default_category is required")
	}
	seen := make(map[string]bool)
	for _, b := range rs.Boosts {
		if b.Unless != "" && !seen[b.Unless] {
			return nil, fmt.Errorf("rules: boost %q depends on %q which must come earlier", b.Name, b.Unless)
		}
		seen[b.Name] = true
	}
	return &rs, nil
}

// BuiltinRuleSet returns the rule table compiled into the binary.
func BuiltinRuleSet() (*RuleSet, error) {
	return LoadRuleSet(builtinRules)
}

// RuleClassifier is the deterministic keyword classifier. It never fails.
type RuleClassifier struct {
	rules *RuleSet
}

func NewRuleClassifier(rules *RuleSet) *RuleClassifier {
	return &RuleClassifier{rules: rules}
}

// NewBuiltinRuleClassifier is NewRuleClassifier over the embedded rules.
func NewBuiltinRuleClassifier() (*RuleClassifier, error) {
	rs, err := BuiltinRuleSet()
	if err != nil {
		return nil, err
	}
	return NewRuleClassifier(rs), nil
}

func (c *RuleClassifier) Name() string { return SourceRules }

func (c *RuleClassifier) Classify(_ context.Context, text string) (Classification, error) {
	return c.Evaluate(text), nil
}

// Evaluate runs the keyword rules over text.
func (c *RuleClassifier) Evaluate(text string) Classification {
	rs := c.rules
	lower := strings.ToLower(text)

	out := Classification{
		Category: rs.DefaultCategory,
		Severity: rs.Severity.Neutral,
		Source:   SourceRules,
	}

	for _, cat := range rs.Categories {
		if len(matches(lower, cat.Keywords)) > 0 {
			out.Category = cat.Name
			break
		}
	}

	out.Explanation = rs.Severity.NeutralExplanation
	for _, tier := range rs.Severity.Tiers {
		hits := len(matches(lower, tier.Keywords))
		if hits == 0 {
			continue
		}
		out.Severity = tier.Base + minInt(hits, tier.MaxBonus)
		out.Explanation = tier.Explanation
		break
	}

	fired := make(map[string]bool)
	for _, b := range rs.Boosts {
		if b.Unless != "" && fired[b.Unless] {
			continue
		}
		hits := matches(lower, b.Keywords)
		if len(hits) == 0 {
			continue
		}
		fired[b.Name] = true
		if b.Once {
			hits = hits[:1]
		}
		for _, kw := range hits {
			out.UrgencyBoost += b.Points
			if b.Severity > 0 {
				out.Severity = minInt(rs.Limits.MaxSeverity, out.Severity+b.Severity)
			}
			if b.Explanation != "" {
				out.Explanation = strings.ReplaceAll(b.Explanation, "{keyword}", kw)
			}
		}
	}

	out.Severity = clampInt(out.Severity, rs.Limits.MinSeverity, rs.Limits.MaxSeverity)
	out.UrgencyBoost = clampInt(out.UrgencyBoost, 0, rs.Limits.MaxBoost)
	return out
}

// matches returns the keywords that occur in text, in table order.
func matches(text string, keywords []string) []string {
	var hits []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			hits = append(hits, kw)
		}
	}
	return hits
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
