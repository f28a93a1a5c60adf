package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"finpay-ledger/internal/auth"
	"finpay-ledger/internal/config"
	"finpay-ledger/internal/events"
	"finpay-ledger/internal/repository"
	"finpay-ledger/internal/server"
	"finpay-ledger/internal/service"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 30 * time.Second

func newRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:          "finpay-ledger",
		Short:        "Ledger transfer service for FinPay accounts",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	loadConfig := func() (*config.Config, error) {
		return config.Load(cfgFile)
	}

	rootCmd.AddCommand(
		newServeCommand(loadConfig),
		newMigrateCommand(loadConfig),
		newReconcileCommand(loadConfig),
		newTokenCommand(loadConfig),
		newVersionCommand(),
	)
	return rootCmd
}

type configLoader func() (*config.Config, error)

func newServeCommand(loadConfig configLoader) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := server.NewLogger(cfg)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if migrate {
				if err := runMigrations(ctx, cfg, logger); err != nil {
					return err
				}
			}

			srv, port, err := server.StartServer(ctx, cfg)
			if err != nil {
				logger.Error("Failed to start server", "error", err)
				return err
			}
			logger.Info("Server started successfully", "port", port)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				select {
				case err := <-srv.Err():
					return err
				case <-gctx.Done():
					return nil
				}
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Stop(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				logger.Error("Server stopped with error", "error", err)
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending schema migrations before serving")
	return cmd
}

func newMigrateCommand(loadConfig configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := runMigrations(cmd.Context(), cfg, stderrLogger(cmd)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newReconcileCommand(loadConfig configLoader) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute balances from the transaction log and report drift",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := stderrLogger(cmd)
			ctx := cmd.Context()

			db, dialect, err := repository.Open(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			store := repository.NewStore(db, dialect, logger)
			ledger := service.NewLedgerService(store, events.NewNoopPublisher(), cfg, logger)

			var reports []*service.ReconciliationReport
			if accountID != "" {
				id, err := service.ParseAccountID(accountID)
				if err != nil {
					return err
				}
				report, err := ledger.Reconcile(ctx, id)
				if err != nil {
					return err
				}
				reports = append(reports, report)
			} else if reports, err = ledger.ReconcileAll(ctx); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			drifted := 0
			for _, report := range reports {
				if !report.Consistent() {
					drifted++
				}
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			if drifted > 0 {
				return fmt.Errorf("%d of %d accounts drifted from the transaction log", drifted, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "reconcile a single account id")
	return cmd
}

func newTokenCommand(loadConfig configLoader) *cobra.Command {
	var (
		accountID string
		role      string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			authenticator, err := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer)
			if err != nil {
				return err
			}

			id, err := uuid.Parse(accountID)
			if err != nil {
				return fmt.Errorf("invalid --account: %w", err)
			}
			token, err := authenticator.IssueToken(id, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "account id placed in the token subject")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "role claim (user or admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("account")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func runMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, dialect, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db, dialect, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// stderrLogger keeps log lines out of command output.
func stderrLogger(cmd *cobra.Command) *slog.Logger {
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
}
