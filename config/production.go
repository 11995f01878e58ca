// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Reconciler ReconcilerConfig `json:"reconciler"`
	Provider   ProviderConfig   `json:"provider"`
	Credits    CreditsConfig    `json:"credits"`
	LeadGen    LeadGenConfig    `json:"lead_gen"`
	Queue      QueueConfig      `json:"queue"`
	Sentry     SentryConfig     `json:"sentry"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	BodyLimit       int           `json:"body_limit"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

type JWTConfig struct {
	SecretKey  string        `json:"-"`
	PrivateKey string        `json:"-"`
	PublicKey  string        `json:"-"`
	UseRSAKeys bool          `json:"use_rsa_keys"`
	TokenTTL   time.Duration `json:"token_ttl"`
	Issuer     string        `json:"issuer"`
	Audience   string        `json:"audience"`
}

type LoggingConfig struct {
	Level            string `json:"level"`  // debug, info, warn, error
	Format           string `json:"format"` // json, console
	Output           string `json:"output"` // stdout, file, both
	FilePath         string `json:"file_path"`
	MaxSize          int    `json:"max_size"` // MB
	MaxBackups       int    `json:"max_backups"`
	MaxAge           int    `json:"max_age"` // days
	Compress         bool   `json:"compress"`
	EnableCaller     bool   `json:"enable_caller"`
	EnableStacktrace bool   `json:"enable_stacktrace"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

// SchedulerConfig drives the campaign processing loop
type SchedulerConfig struct {
	Enabled          bool          `json:"enabled"`
	CampaignInterval time.Duration `json:"campaign_interval"`
	CampaignTimeout  time.Duration `json:"campaign_timeout"`
	CampaignsPerTick int           `json:"campaigns_per_tick"`
	Concurrency      int           `json:"concurrency"`
	LeadBatchSize    int           `json:"lead_batch_size"`
	MessageRecheck   time.Duration `json:"message_recheck"`
	ConnectCooldown  time.Duration `json:"connect_cooldown"`
}

// ReconcilerConfig drives the connection acceptance reconciler
type ReconcilerConfig struct {
	Enabled        bool          `json:"enabled"`
	Cron           string        `json:"cron"`
	Timezone       string        `json:"timezone"`
	Lookback       time.Duration `json:"lookback"`
	AccountTimeout time.Duration `json:"account_timeout"`
}

// ProviderConfig selects and tunes the outreach providers
type ProviderConfig struct {
	Domain                  string        `json:"domain"` // mock
	CallTimeout             time.Duration `json:"call_timeout"`
	MonthlyConnectNoteLimit int           `json:"monthly_connect_note_limit"`
	DefaultPhoneRegion      string        `json:"default_phone_region"`
}

// CreditsConfig prices each usage type; a zero price disables metering for it
type CreditsConfig struct {
	Enabled         bool  `json:"enabled"`
	LeadGeneration  int64 `json:"lead_generation"`
	ContactReveal   int64 `json:"contact_reveal"`
	LinkedInConnect int64 `json:"linkedin_connect"`
	LinkedInMessage int64 `json:"linkedin_message"`
	LinkedInVisit   int64 `json:"linkedin_visit"`
	LinkedInFollow  int64 `json:"linkedin_follow"`
	EmailSend       int64 `json:"email_send"`
	WhatsAppSend    int64 `json:"whatsapp_send"`
	VoiceCall       int64 `json:"voice_call"`
}

// Price returns the credit cost of one unit of usage
func (c CreditsConfig) Price(usage string) int64 {
	if !c.Enabled {
		return 0
	}
	switch usage {
	case utils.UsageLeadGeneration:
		return c.LeadGeneration
	case utils.UsageContactReveal:
		return c.ContactReveal
	case utils.UsageLinkedInConnect:
		return c.LinkedInConnect
	case utils.UsageLinkedInMessage:
		return c.LinkedInMessage
	case utils.UsageLinkedInVisit:
		return c.LinkedInVisit
	case utils.UsageLinkedInFollow:
		return c.LinkedInFollow
	case utils.UsageEmailSend:
		return c.EmailSend
	case utils.UsageWhatsAppSend:
		return c.WhatsAppSend
	case utils.UsageVoiceCall:
		return c.VoiceCall
	default:
		return 0
	}
}

type LeadGenConfig struct {
	PageSize int `json:"page_size"`
	MaxPages int `json:"max_pages"`
}

type QueueConfig struct {
	Enabled     bool          `json:"enabled"`
	Prefix      string        `json:"prefix"`
	Workers     int           `json:"workers"`
	MaxAttempts int           `json:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff"`
	PollTimeout time.Duration `json:"poll_timeout"`
	TaskTimeout time.Duration `json:"task_timeout"`
}

type SentryConfig struct {
	DSN              string  `json:"-"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Debug            bool    `json:"debug"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := loadFromEnv()

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromEnv() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "campaigns"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1024*1024),
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{}),
		},
		JWT: JWTConfig{
			SecretKey:  getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey: getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:  getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys: getEnvBool("JWT_USE_RSA_KEYS", false),
			TokenTTL:   getEnvDuration("JWT_TOKEN_TTL", 30*24*time.Hour),
			Issuer:     getEnvString("JWT_ISSUER", "lad-campaigns"),
			Audience:   getEnvString("JWT_AUDIENCE", "lad-campaigns-api"),
		},
		Logging: LoggingConfig{
			Level:            getEnvString("LOG_LEVEL", "info"),
			Format:           getEnvString("LOG_FORMAT", "json"),
			Output:           getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:         getEnvString("LOG_FILE_PATH", "/var/log/campaigns/app.log"),
			MaxSize:          getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:       getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:           getEnvInt("LOG_MAX_AGE", 30),
			Compress:         getEnvBool("LOG_COMPRESS", true),
			EnableCaller:     getEnvBool("LOG_ENABLE_CALLER", true),
			EnableStacktrace: getEnvBool("LOG_ENABLE_STACKTRACE", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", true),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "campaigns:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 30*24*time.Hour),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getEnvBool("SCHEDULER_ENABLED", true),
			CampaignInterval: getEnvDuration("SCHEDULER_CAMPAIGN_INTERVAL", time.Minute),
			CampaignTimeout:  getEnvDuration("SCHEDULER_CAMPAIGN_TIMEOUT", 5*time.Minute),
			CampaignsPerTick: getEnvInt("SCHEDULER_CAMPAIGNS_PER_TICK", 100),
			Concurrency:      getEnvInt("SCHEDULER_CONCURRENCY", 1),
			LeadBatchSize:    getEnvInt("SCHEDULER_LEAD_BATCH_SIZE", 50),
			MessageRecheck:   getEnvDuration("SCHEDULER_MESSAGE_RECHECK", utils.DefaultMessageRecheck),
			ConnectCooldown:  getEnvDuration("SCHEDULER_CONNECT_COOLDOWN", utils.DefaultConnectCooldown),
		},
		Reconciler: ReconcilerConfig{
			Enabled:        getEnvBool("RECONCILER_ENABLED", true),
			Cron:           getEnvString("RECONCILER_CRON", "0 9,13,17 * * 1-5"),
			Timezone:       getEnvString("RECONCILER_TIMEZONE", "UTC"),
			Lookback:       getEnvDuration("RECONCILER_LOOKBACK", utils.DefaultReconcileLookback),
			AccountTimeout: getEnvDuration("RECONCILER_ACCOUNT_TIMEOUT", 2*time.Minute),
		},
		Provider: ProviderConfig{
			Domain:                  getEnvString("PROVIDER_DOMAIN", "mock"),
			CallTimeout:             getEnvDuration("PROVIDER_CALL_TIMEOUT", utils.DefaultProviderCallTimeout),
			MonthlyConnectNoteLimit: getEnvInt("PROVIDER_MONTHLY_CONNECT_NOTE_LIMIT", 5),
			DefaultPhoneRegion:      getEnvString("PROVIDER_DEFAULT_PHONE_REGION", "US"),
		},
		Credits: CreditsConfig{
			Enabled:         getEnvBool("CREDITS_ENABLED", true),
			LeadGeneration:  getEnvInt64("CREDITS_LEAD_GENERATION", 1),
			ContactReveal:   getEnvInt64("CREDITS_CONTACT_REVEAL", 1),
			LinkedInConnect: getEnvInt64("CREDITS_LINKEDIN_CONNECT", 1),
			LinkedInMessage: getEnvInt64("CREDITS_LINKEDIN_MESSAGE", 1),
			LinkedInVisit:   getEnvInt64("CREDITS_LINKEDIN_VISIT", 0),
			LinkedInFollow:  getEnvInt64("CREDITS_LINKEDIN_FOLLOW", 0),
			EmailSend:       getEnvInt64("CREDITS_EMAIL_SEND", 1),
			WhatsAppSend:    getEnvInt64("CREDITS_WHATSAPP_SEND", 2),
			VoiceCall:       getEnvInt64("CREDITS_VOICE_CALL", 5),
		},
		LeadGen: LeadGenConfig{
			PageSize: getEnvInt("LEAD_GEN_PAGE_SIZE", utils.LeadSourcePageSize),
			MaxPages: getEnvInt("LEAD_GEN_MAX_PAGES", utils.DefaultLeadGenMaxPages),
		},
		Queue: QueueConfig{
			Enabled:     getEnvBool("QUEUE_ENABLED", true),
			Prefix:      getEnvString("QUEUE_PREFIX", "campaigns:tasks"),
			Workers:     getEnvInt("QUEUE_WORKERS", 2),
			MaxAttempts: getEnvInt("QUEUE_MAX_ATTEMPTS", 5),
			BaseBackoff: getEnvDuration("QUEUE_BASE_BACKOFF", 5*time.Second),
			PollTimeout: getEnvDuration("QUEUE_POLL_TIMEOUT", 5*time.Second),
			TaskTimeout: getEnvDuration("QUEUE_TASK_TIMEOUT", 5*time.Minute),
		},
		Sentry: SentryConfig{
			DSN:              getEnvString("SENTRY_DSN", ""),
			Environment:      getEnvString("SENTRY_ENVIRONMENT", getEnvString("APP_ENV", "production")),
			TracesSampleRate: getEnvFloat("SENTRY_TRACES_SAMPLE_RATE", 0),
			Debug:            getEnvBool("SENTRY_DEBUG", false),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}
}

// loadEnvFile loads environment variables from path if it exists; variables already set win
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errs []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errs = append(errs, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errs = append(errs, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errs = append(errs, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errs = append(errs, "DB_USER is required")
	}

	// Validate JWT configuration
	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "" {
			errs = append(errs, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.TokenTTL <= 0 {
		errs = append(errs, "JWT_TOKEN_TTL must be positive")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 || cfg.Server.WriteTimeout <= 0 || cfg.Server.IdleTimeout <= 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT, SERVER_WRITE_TIMEOUT and SERVER_IDLE_TIMEOUT must be positive")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		if !slices.Contains(validLevels, cfg.Logging.Level) {
			errs = append(errs, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}
	if !slices.Contains([]string{"json", "console"}, cfg.Logging.Format) {
		errs = append(errs, "LOG_FORMAT must be json or console")
	}
	if !slices.Contains([]string{"stdout", "file", "both"}, cfg.Logging.Output) {
		errs = append(errs, "LOG_OUTPUT must be stdout, file or both")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when cache is enabled")
	}

	// Validate scheduler configuration
	if cfg.Scheduler.CampaignInterval <= 0 {
		errs = append(errs, "SCHEDULER_CAMPAIGN_INTERVAL must be positive")
	}
	if cfg.Scheduler.CampaignTimeout <= 0 {
		errs = append(errs, "SCHEDULER_CAMPAIGN_TIMEOUT must be positive")
	}
	if cfg.Scheduler.LeadBatchSize <= 0 {
		errs = append(errs, "SCHEDULER_LEAD_BATCH_SIZE must be positive")
	}
	if cfg.Scheduler.ConnectCooldown < 0 {
		errs = append(errs, "SCHEDULER_CONNECT_COOLDOWN must not be negative")
	}

	// Validate reconciler configuration
	if cfg.Reconciler.Enabled {
		if _, err := cron.ParseStandard(cfg.Reconciler.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("RECONCILER_CRON is invalid: %v", err))
		}
		if _, err := utils.LoadLocation(cfg.Reconciler.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("RECONCILER_TIMEZONE is invalid: %v", err))
		}
		if cfg.Reconciler.Lookback <= 0 {
			errs = append(errs, "RECONCILER_LOOKBACK must be positive")
		}
	}

	// Validate provider configuration
	if cfg.Provider.Domain != "mock" {
		errs = append(errs, fmt.Sprintf("PROVIDER_DOMAIN %q is not supported", cfg.Provider.Domain))
	}
	if cfg.Provider.CallTimeout <= 0 {
		errs = append(errs, "PROVIDER_CALL_TIMEOUT must be positive")
	}
	if cfg.Provider.MonthlyConnectNoteLimit < 0 {
		errs = append(errs, "PROVIDER_MONTHLY_CONNECT_NOTE_LIMIT must not be negative")
	}

	// Validate lead generation configuration
	if cfg.LeadGen.PageSize <= 0 || cfg.LeadGen.MaxPages <= 0 {
		errs = append(errs, "LEAD_GEN_PAGE_SIZE and LEAD_GEN_MAX_PAGES must be positive")
	}

	// Validate queue configuration
	if cfg.Queue.Enabled {
		if !cfg.Cache.Enabled {
			errs = append(errs, "QUEUE_ENABLED requires CACHE_ENABLED")
		}
		if cfg.Queue.MaxAttempts <= 0 || cfg.Queue.Workers <= 0 {
			errs = append(errs, "QUEUE_MAX_ATTEMPTS and QUEUE_WORKERS must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}
