package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/config"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/observability"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := observability.NewLogger(cfg.LogLevel, "flexcard")
			defer logger.Sync()

			ctx := commandContext(cmd)
			store, err := openPostgres(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print the migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := observability.NewLogger(cfg.LogLevel, "flexcard")
			defer logger.Sync()

			ctx := commandContext(cmd)
			store, err := openPostgres(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.MigrationStatus(ctx)
		},
	})
	return cmd
}

func newUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Operator account administration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newUsersCreateCommand())
	return cmd
}

func newUsersCreateCommand() *cobra.Command {
	var (
		username string
		email    string
		fullName string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account (password read from FLEXCARD_ADMIN_PASSWORD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.AdminPassword == "" {
				return errors.New("FLEXCARD_ADMIN_PASSWORD is required")
			}
			if cfg.StoreBackend == "memory" {
				return errors.New("users create needs STORE_BACKEND=postgres; the memory store seeds its admin from FLEXCARD_ADMIN_USERNAME and FLEXCARD_ADMIN_PASSWORD at serve")
			}

			logger := observability.NewLogger(cfg.LogLevel, "flexcard")
			defer logger.Sync()

			ctx := commandContext(cmd)
			store, err := openPostgres(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				return err
			}

			authSvc := service.NewAuthService(store, observability.NewMetrics(), logger)
			user, err := authSvc.CreateInitialAdmin(ctx, username, email, cfg.AdminPassword, fullName)
			if err != nil {
				return err
			}
			logger.Info("admin created", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %q (id %d)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&fullName, "full-name", "", "Display name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
