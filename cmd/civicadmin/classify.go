package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/civicpulse/backend/internal/app"
	"github.com/civicpulse/backend/internal/config"
	"github.com/civicpulse/backend/internal/models"
	"github.com/civicpulse/backend/internal/services"
)

type classifyFlags struct {
	unresolved int64
	rulesOnly  bool
}

// classifyReport is what an issue with this text would be scored as.
type classifyReport struct {
	Classifier     string                  `json:"classifier"`
	Classification services.Classification `json:"classification"`
	Breakdown      models.ScoreBreakdown   `json:"breakdown"`
	Score          int                     `json:"score"`
	Priority       models.PriorityLabel    `json:"priority"`
}

func newClassifyCmd() *cobra.Command {
	f := &classifyFlags{}

	cmd := &cobra.Command{
		Use:   "classify <text>",
		Short: "Score a description the way intake would, without storing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c services.Classifier
			if f.rulesOnly {
				rc, err := services.NewBuiltinRuleClassifier()
				if err != nil {
					return err
				}
				c = rc
			} else {
				fc, err := app.NewClassifier(config.Load())
				if err != nil {
					return err
				}
				c = fc
			}
			return runClassify(cmd.Context(), cmd.OutOrStdout(), c, strings.Join(args, " "), f.unresolved)
		},
	}

	flags := cmd.Flags()
	flags.Int64Var(&f.unresolved, "unresolved", 0, "Unresolved issue count to use for the frequency term")
	flags.BoolVar(&f.rulesOnly, "rules", false, "Use the keyword rules even if a model is configured")

	return cmd
}

func runClassify(ctx context.Context, w io.Writer, c services.Classifier, text string, unresolved int64) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is empty")
	}
	cls, err := c.Classify(ctx, text)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	impact := services.NewKeywordLocationImpact().Estimate(text, models.GeoPoint{})
	breakdown := services.BuildBreakdown(cls, impact, unresolved)
	score, label := services.ComputePriority(breakdown)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(classifyReport{
		Classifier:     c.Name(),
		Classification: cls,
		Breakdown:      breakdown,
		Score:          score,
		Priority:       label,
	})
}
