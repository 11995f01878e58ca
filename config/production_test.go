package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/utils"
)

func validConfig() *ProductionConfig {
	cfg := loadFromEnv()
	cfg.JWT.SecretKey = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg := loadFromEnv()

	assert.Equal(t, "0 9,13,17 * * 1-5", cfg.Reconciler.Cron)
	assert.Equal(t, utils.DefaultConnectCooldown, cfg.Scheduler.ConnectCooldown)
	assert.Equal(t, 1, cfg.Scheduler.Concurrency)
	assert.Equal(t, utils.DefaultMessageRecheck, cfg.Scheduler.MessageRecheck)
	assert.Equal(t, utils.LeadSourcePageSize, cfg.LeadGen.PageSize)
	assert.Equal(t, "mock", cfg.Provider.Domain)
	assert.Equal(t, 5, cfg.Provider.MonthlyConnectNoteLimit)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_CONNECT_COOLDOWN", "3s")
	t.Setenv("PROVIDER_MONTHLY_CONNECT_NOTE_LIMIT", "12")
	t.Setenv("CREDITS_VOICE_CALL", "9")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SENTRY_TRACES_SAMPLE_RATE", "0.25")
	t.Setenv("DB_PORT", "not-a-number")

	cfg := loadFromEnv()

	assert.Equal(t, 3*time.Second, cfg.Scheduler.ConnectCooldown)
	assert.Equal(t, 12, cfg.Provider.MonthlyConnectNoteLimit)
	assert.Equal(t, int64(9), cfg.Credits.VoiceCall)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.InDelta(t, 0.25, cfg.Sentry.TracesSampleRate, 0.0001)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestValidateProductionConfig(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, ValidateProductionConfig(validConfig()))
	})

	tests := []struct {
		name   string
		mutate func(*ProductionConfig)
		want   string
	}{
		{"ShortSecret", func(c *ProductionConfig) { c.JWT.SecretKey = "short" }, "JWT_SECRET_KEY"},
		{"RSAWithoutKeys", func(c *ProductionConfig) { c.JWT.UseRSAKeys = true }, "JWT_PRIVATE_KEY"},
		{"BadCron", func(c *ProductionConfig) { c.Reconciler.Cron = "every day" }, "RECONCILER_CRON"},
		{"BadTimezone", func(c *ProductionConfig) { c.Reconciler.Timezone = "Mars/Olympus" }, "RECONCILER_TIMEZONE"},
		{"UnknownProvider", func(c *ProductionConfig) { c.Provider.Domain = "unipile" }, "PROVIDER_DOMAIN"},
		{"QueueWithoutCache", func(c *ProductionConfig) { c.Cache.Enabled = false }, "QUEUE_ENABLED requires CACHE_ENABLED"},
		{"BadLogLevel", func(c *ProductionConfig) { c.Logging.Level = "verbose" }, "LOG_LEVEL"},
		{"ZeroBatch", func(c *ProductionConfig) { c.Scheduler.LeadBatchSize = 0 }, "SCHEDULER_LEAD_BATCH_SIZE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateProductionConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("CollectsAllErrors", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Host = ""
		cfg.Server.Port = 0
		err := ValidateProductionConfig(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_HOST is required; SERVER_PORT")
	})
}

func TestCreditsPrice(t *testing.T) {
	c := CreditsConfig{Enabled: true, LinkedInConnect: 2, ContactReveal: 3}
	assert.Equal(t, int64(2), c.Price(utils.UsageLinkedInConnect))
	assert.Equal(t, int64(3), c.Price(utils.UsageContactReveal))
	assert.Equal(t, int64(0), c.Price("unknown"))

	c.Enabled = false
	assert.Equal(t, int64(0), c.Price(utils.UsageLinkedInConnect))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CAMPAIGNS_TEST_ONLY_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CAMPAIGNS_TEST_ONLY_KEY") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("CAMPAIGNS_TEST_ONLY_KEY"))
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(-1))

	path := filepath.Join(t.TempDir(), "app.log")
	logger, err = NewLogger(LoggingConfig{Level: "info", Format: "json", Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)
	logger.Info("campaign processed")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "campaign processed")

	_, err = NewLogger(LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}
