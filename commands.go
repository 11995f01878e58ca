package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/handlers"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/middleware"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/router"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/scheduler"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the schedulers and task workers",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initializeApplication(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := repository.Migrate(app.db); err != nil {
			return err
		}
		logger.Info("migration completed")
		return nil
	},
}

var reconcileTenant string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile accepted LinkedIn connections once",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := initializeApplication(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		if reconcileTenant != "" {
			summary, err := app.reconciler.ReconcileTenant(ctx, reconcileTenant)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		}

		s, err := scheduler.NewAcceptanceScheduler(app.reconciler, cfg.Reconciler, logger)
		if err != nil {
			return err
		}
		summary, err := s.RunOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, summary)
	},
}

var runCampaignCmd = &cobra.Command{
	Use:   "run-campaign <campaign-id>",
	Short: "Run one processing pass over a campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid campaign id %q", args[0])
		}

		app, err := initializeApplication(cfg)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		summary, err := app.runFlow.ProcessCampaign(ctx, uint(id))
		if err != nil {
			return err
		}
		return printJSON(cmd, summary)
	},
}

var (
	tokenTenant  string
	tokenSubject string
	tokenScopes  []string
	tokenTTL     time.Duration
)

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue a tenant-scoped service token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokenService, err := services.NewTokenService(
			cfg.JWT.TokenTTL,
			cfg.JWT.Issuer,
			cfg.JWT.Audience,
			cfg.JWT.UseRSAKeys,
			cfg.JWT.PrivateKey,
			cfg.JWT.PublicKey,
			cfg.JWT.SecretKey,
		)
		if err != nil {
			return err
		}

		token, err := tokenService.IssueServiceToken(tokenTenant, tokenSubject, tokenScopes, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileTenant, "tenant", "", "Reconcile a single tenant instead of all of them")

	issueTokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "Tenant the token acts for")
	issueTokenCmd.Flags().StringVar(&tokenSubject, "subject", "service", "Token subject")
	issueTokenCmd.Flags().StringSliceVar(&tokenScopes, "scope", []string{services.ScopeCampaignsWrite, services.ScopeWebhooks}, "Granted scopes")
	issueTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to JWT_TOKEN_TTL)")
	_ = issueTokenCmd.MarkFlagRequired("tenant")
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := initializeApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var stopFuncs []func()
	defer func() {
		// stop in reverse start order
		for i := len(stopFuncs) - 1; i >= 0; i-- {
			stopFuncs[i]()
		}
	}()

	if cfg.Scheduler.Enabled {
		s := scheduler.NewCampaignScheduler(app.campaignRepo, app.runFlow, cfg.Scheduler, utils.SystemClock(), logger)
		stopFuncs = append(stopFuncs, s.Start(ctx))
	}

	if cfg.Reconciler.Enabled {
		s, err := scheduler.NewAcceptanceScheduler(app.reconciler, cfg.Reconciler, logger)
		if err != nil {
			return err
		}
		stopFuncs = append(stopFuncs, s.Start())
	}

	if app.queue != nil {
		w := scheduler.NewTaskWorker(app.queue, app.runFlow, cfg.Queue, logger)
		stopFuncs = append(stopFuncs, w.Start(ctx))
	}

	checks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := app.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if app.rc != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.rc.Ping(ctx).Err()
		}
	}

	appRouter := router.NewFiberRouter(
		cfg.Server,
		cfg.Metrics,
		handlers.NewCampaignHandler(app.lifecycle, logger),
		handlers.NewWebhookHandler(app.reconciler, utils.SystemClock(), logger),
		middleware.NewAuthMiddleware(app.tokenService),
		checks,
		logger,
	)
	appRouter.SetupRoutes()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- appRouter.Start(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := appRouter.GetApp().ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
