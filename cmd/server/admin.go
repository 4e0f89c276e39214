package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tzscheduler/internal/config"
	"tzscheduler/internal/model"
	"tzscheduler/internal/service"
	"tzscheduler/internal/store"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			pool, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := store.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			newLogger(cfg).Info("migrations applied")
			return nil
		},
	}
}

// newCreateAdminCmd bootstraps the first admin, since registration itself
// needs an admin token.
func newCreateAdminCmd() *cobra.Command {
	var name, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			if password == "" {
				password = os.Getenv("ADMIN_PASSWORD")
			}

			pool, err := store.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			accounts := service.NewAccounts(store.New(pool), service.TokenConfig{}, newLogger(cfg))
			u, err := accounts.CreateUser(cmd.Context(), model.RegisterInput{Name: name, IsAdmin: true, Password: password})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", u.Name, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "admin user name")
	cmd.Flags().StringVar(&password, "password", "", "admin password (defaults to ADMIN_PASSWORD)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
