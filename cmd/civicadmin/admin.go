package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicpulse/backend/internal/services"
)

type createAdminFlags struct {
	name     string
	email    string
	password string
}

func newCreateAdminCmd() *cobra.Command {
	f := &createAdminFlags{}

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(store services.Store) error {
				auth := services.NewAuthService(store, nil)
				user, err := auth.CreateAdmin(cmd.Context(), f.name, f.email, f.password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s <%s>\n", user.ID, user.Email)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.name, "name", "Administrator", "Display name")
	flags.StringVar(&f.email, "email", "", "Login email (required)")
	flags.StringVar(&f.password, "password", "", "Password, at least 6 characters (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}
