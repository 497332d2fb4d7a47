package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-realtime/internal/auth"
	"github.com/spec-kit/helpdesk-realtime/internal/config"
	"github.com/spec-kit/helpdesk-realtime/internal/deadletter"
	"github.com/spec-kit/helpdesk-realtime/internal/domain"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
	"github.com/spec-kit/helpdesk-realtime/internal/persistence"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			return persistence.RunMigrations(cmd.Context(), pg.Pool, logger)
		},
	}
}

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a session token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			roleNames, err := cmd.Flags().GetStringSlice("role")
			if err != nil {
				return err
			}
			actAs, err := cmd.Flags().GetString("act-as")
			if err != nil {
				return err
			}
			name, err := cmd.Flags().GetString("name")
			if err != nil {
				return err
			}

			roles := make([]domain.Role, 0, len(roleNames))
			for _, r := range roleNames {
				role := domain.Role(r)
				switch role {
				case domain.RoleRequester, domain.RoleAgent, domain.RoleAdmin:
				default:
					return fmt.Errorf("unknown role %q", r)
				}
				roles = append(roles, role)
			}

			session := domain.NewSession(args[0], roles...)
			session.Profile.DisplayName = name
			if actAs != "" {
				if !session.HasRole(domain.RoleAdmin) {
					return fmt.Errorf("--act-as requires the admin role")
				}
				session = session.Impersonate(actAs, domain.RoleRequester)
			}

			token, expiresAt, err := auth.NewTokenManager(cfg.Auth).GenerateToken(session)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringSlice("role", []string{string(domain.RoleRequester)}, "Roles carried by the token")
	cmd.Flags().String("act-as", "", "Impersonate this requester (admin only)")
	cmd.Flags().String("name", "", "Display name")
	return cmd
}

func newDeadLettersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "List the most recent failed background tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}
			limit, err := cmd.Flags().GetInt("limit")
			if err != nil {
				return err
			}
			if cfg.DeadLetter.Path == "" {
				return fmt.Errorf("DEADLETTER_SQLITE_PATH is empty")
			}

			sink, err := deadletter.OpenSQLite(cmd.Context(), cfg.DeadLetter.Path)
			if err != nil {
				return err
			}
			defer sink.Close()

			entries, err := sink.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTASK\tAT\tREASON")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", e.ID, e.Task, e.CreatedAt.Format(time.RFC3339), e.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "Number of entries to show")
	return cmd
}
