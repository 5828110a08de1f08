package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicpulse/backend/internal/models"
	"github.com/civicpulse/backend/internal/services"
)

func newBannedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "banned",
		Short: "Inspect banned-email tombstones",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every banned email, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store services.Store) error {
				bans, err := store.ListBannedEmails(cmd.Context())
				if err != nil {
					return err
				}
				if bans == nil {
					bans = []models.BannedEmail{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(bans)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <email>",
		Short: "Report whether an email may register",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store services.Store) error {
				email := models.NormalizeEmail(args[0])
				banned, err := store.IsEmailBanned(cmd.Context(), email)
				if err != nil {
					return err
				}
				if banned {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: banned\n", email)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: not banned\n", email)
				}
				return nil
			})
		},
	})

	return cmd
}
