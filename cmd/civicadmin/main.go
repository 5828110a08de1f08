package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/civicpulse/backend/internal/app"
	"github.com/civicpulse/backend/internal/config"
	"github.com/civicpulse/backend/internal/services"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:           "civicadmin",
		Short:         "Operator tools for the CivicPulse backend",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newCreateAdminCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newBannedCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withStore opens the configured store for the duration of fn.
func withStore(ctx context.Context, fn func(store services.Store) error) error {
	cfg := config.Load()
	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	runErr := fn(store)
	if err := store.Close(ctx); err != nil && runErr == nil {
		return fmt.Errorf("close store: %w", err)
	}
	return runErr
}
