// Package main provides the entry point of the campaign execution service
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/repository"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	cfg    *config.ProductionConfig
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "campaigns",
	Short:         "Campaign execution and reconciliation service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadProductionConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		logger, err = config.NewLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		logger = logger.With(
			zap.String("env", cfg.Deployment.Environment),
			zap.String("version", cfg.Deployment.Version))

		initializeSentry(cfg.Sentry, cfg.Deployment)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		sentry.Flush(2 * time.Second)
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd, runCampaignCmd, issueTokenCmd)

	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Error("command failed", zap.Error(err))
			_ = logger.Sync()
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// initializeSentry enables error reporting when a DSN is configured
func initializeSentry(sc config.SentryConfig, dc config.DeploymentConfig) {
	if sc.DSN == "" {
		logger.Info("sentry disabled (no DSN configured)")
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sc.DSN,
		Environment:      sc.Environment,
		Release:          dc.Version + "+" + dc.CommitHash,
		TracesSampleRate: sc.TracesSampleRate,
		Debug:            sc.Debug,
		AttachStacktrace: true,
	})
	if err != nil {
		logger.Warn("failed to initialize sentry", zap.Error(err))
		return
	}
	logger.Info("sentry initialized", zap.String("environment", sc.Environment))
}

// Application holds the wired components shared by every command
type Application struct {
	db *gorm.DB
	rc *redis.Client

	campaignRepo repository.CampaignRepository
	queue        services.TaskQueue
	tokenService services.TokenService

	runFlow    businessflow.CampaignRunFlow
	lifecycle  businessflow.CampaignLifecycleFlow
	reconciler businessflow.AcceptanceReconcileFlow
}

// Close releases the database and Redis connections
func (a *Application) Close() {
	if a.rc != nil {
		_ = a.rc.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// initializeApplication connects the stores and wires repositories, services and flows
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

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
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	linkedIn, outreach, leadSource, err := initializeProviders(cfg.Provider)
	if err != nil {
		return nil, err
	}

	// Repositories
	campaignRepo := repository.NewCampaignRepository(db)
	stepRepo := repository.NewCampaignStepRepository(db)
	leadRepo := repository.NewCampaignLeadRepository(db)
	actionRepo := repository.NewActionRecordRepository(db)
	accountRepo := repository.NewProviderAccountRepository(db)
	walletRepo := repository.NewCreditWalletRepository(db)
	creditTxRepo := repository.NewCreditTransactionRepository(db)
	txManager := repository.NewTxManager(db)

	// Redis-backed services are optional
	var (
		revealCache services.RevealCache
		publisher   services.EventPublisher
		locker      services.CampaignLocker
		queue       services.TaskQueue
	)
	if rc != nil {
		revealCache = services.NewRedisRevealCache(rc, cfg.Cache.DefaultTTL)
		publisher = services.NewRedisEventPublisher(rc)
		locker = services.NewRedisCampaignLocker(rc)
		if cfg.Queue.Enabled {
			queue = services.NewRedisTaskQueue(rc, cfg.Queue.Prefix, cfg.Queue.MaxAttempts, cfg.Queue.BaseBackoff)
		}
	} else if cfg.Queue.Enabled {
		logger.Warn("task queue disabled because redis is not configured")
	}

	clock := utils.SystemClock()

	// Flows
	credits := businessflow.NewCreditFlow(walletRepo, creditTxRepo, txManager, cfg.Credits, logger)
	quota := businessflow.NewQuotaFlow(campaignRepo, leadRepo, actionRepo, leadSource, credits, cfg.LeadGen, clock, logger)
	enrichment := businessflow.NewEnrichmentFlow(leadRepo, actionRepo, leadSource, revealCache, credits, clock, logger)
	limiter := businessflow.NewAccountRateLimiter(cfg.Scheduler.ConnectCooldown)
	executor := businessflow.NewStepExecutorFlow(
		leadRepo, actionRepo, accountRepo,
		linkedIn, outreach,
		quota, enrichment, credits, limiter,
		cfg.Provider, clock, logger,
	)
	progression := businessflow.NewLeadProgression(leadRepo, cfg.Scheduler, clock)
	runFlow := businessflow.NewCampaignRunFlow(
		campaignRepo, leadRepo, actionRepo,
		executor, progression, publisher, locker,
		cfg.Scheduler, clock, logger,
	)
	lifecycle := businessflow.NewCampaignLifecycleFlow(campaignRepo, stepRepo, leadRepo, txManager, runFlow, queue, clock, logger)
	reconciler := businessflow.NewAcceptanceReconcileFlow(
		accountRepo, campaignRepo, leadRepo, actionRepo,
		linkedIn, executor, progression,
		cfg.Reconciler, clock, logger,
	)

	return &Application{
		db:           db,
		rc:           rc,
		campaignRepo: campaignRepo,
		queue:        queue,
		tokenService: tokenService,
		runFlow:      runFlow,
		lifecycle:    lifecycle,
		reconciler:   reconciler,
	}, nil
}

// initializeProviders selects the provider adapters; only the recording mocks ship
func initializeProviders(pc config.ProviderConfig) (services.LinkedInProvider, services.OutreachProvider, services.LeadSource, error) {
	switch pc.Domain {
	case "mock", "":
		logger.Warn("using mock providers; no outbound action leaves this process")
		return services.NewMockLinkedInProvider(), services.NewMockOutreachProvider(), services.NewMockLeadSource(), nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported provider domain %q", pc.Domain)
	}
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(dc config.DatabaseConfig) (*gorm.DB, error) {
	level := gormlogger.Silent
	if dc.SlowQueryLog {
		level = gormlogger.Warn
	}
	gormLog := gormlogger.New(zap.NewStdLog(logger.Named("gorm")), gormlogger.Config{
		SlowThreshold:             dc.SlowQueryTime,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dc.DSN()), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(dc.MaxOpenConns)
	sqlDB.SetMaxIdleConns(dc.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(dc.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(dc.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("host", dc.Host),
		zap.Int("max_open_conns", dc.MaxOpenConns),
		zap.Int("max_idle_conns", dc.MaxIdleConns))

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cc config.CacheConfig) (*redis.Client, error) {
	if !cc.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cc.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cc.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", opt.Addr), zap.Int("db", cc.RedisDB))
	return rc, nil
}
