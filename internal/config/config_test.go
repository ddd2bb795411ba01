package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govwatch/discovery-service/internal/config"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := config.FromEnv(envMap(map[string]string{
		"DATABASE_URL": "postgres://localhost/govwatch",
		"REDIS_URL":    "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	assert.Equal(t, "https://api.sam.gov/opportunities/v2/search", cfg.SAMBaseURL)
	assert.Equal(t, 30*time.Second, cfg.SourceTimeout)
	assert.Equal(t, 60*time.Second, cfg.StoreTimeout)
	assert.Zero(t, cfg.DBMaxConns, "zero keeps the pgx default")
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 200*time.Millisecond, cfg.PageDelay)
	assert.Equal(t, 12, cfg.BackfillMonths)
	assert.Equal(t, 5*time.Second, cfg.BackfillWindowDelay)
	assert.Equal(t, 100, cfg.BackfillThreshold)
	assert.Equal(t, "@daily", cfg.SyncCron)
	assert.Equal(t, "@hourly", cfg.ReminderCron)
	assert.Equal(t, config.NotifyRedis, cfg.NotifyBackend)
	assert.Equal(t, "8081", cfg.OpsPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := config.FromEnv(envMap(map[string]string{
		"DATABASE_URL":          "postgres://localhost/govwatch",
		"NOTIFY_BACKEND":        "Kafka",
		"KAFKA_BROKERS":         "k1:9092, k2:9092,",
		"KAFKA_TOPIC":           "alerts",
		"SYNC_PAGE_DELAY":       "1s",
		"BACKFILL_WINDOW_DELAY": "0",
		"STORE_TIMEOUT":         "90",
		"SYNC_PAGE_SIZE":        "1000",
		"LOG_FORMAT":            "JSON",
		"DB_MAX_CONNS":          "8",
	}))
	require.NoError(t, err)

	assert.Equal(t, config.NotifyKafka, cfg.NotifyBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "alerts", cfg.KafkaTopic)
	assert.Equal(t, time.Second, cfg.PageDelay)
	assert.Equal(t, time.Duration(0), cfg.BackfillWindowDelay)
	assert.Equal(t, 90*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 1000, cfg.PageSize)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 8, cfg.DBMaxConns)
	assert.Empty(t, cfg.RedisURL, "redis is optional for the kafka backend")
	assert.NoError(t, cfg.ValidateNotifier())
}

func TestFromEnv_Invalid(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"DATABASE_URL": "postgres://localhost/govwatch",
			"REDIS_URL":    "redis://localhost:6379/0",
		}
	}
	cases := map[string]map[string]string{
		"missing database": {"DATABASE_URL": ""},
		"page size":        {"SYNC_PAGE_SIZE": "5000"},
		"not a number":     {"BACKFILL_MONTHS": "twelve"},
		"bad duration":     {"SYNC_PAGE_DELAY": "soon"},
		"unknown backend":  {"NOTIFY_BACKEND": "smtp"},
		"log level":        {"LOG_LEVEL": "verbose"},
		"port":             {"OPS_PORT": "http"},
		"negative pool":    {"DB_MAX_CONNS": "-1"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			m := base()
			for k, v := range overrides {
				m[k] = v
			}
			_, err := config.FromEnv(envMap(m))
			assert.Error(t, err)
		})
	}

	t.Run("sqlite path stands in for DATABASE_URL", func(t *testing.T) {
		cfg, err := config.FromEnv(envMap(map[string]string{"SQLITE_PATH": "govwatch.db"}))
		require.NoError(t, err)
		assert.Equal(t, "govwatch.db", cfg.SQLitePath)
	})
}

func TestValidateNotifier(t *testing.T) {
	load := func(m map[string]string) *config.Config {
		m["DATABASE_URL"] = "postgres://x"
		cfg, err := config.FromEnv(envMap(m))
		require.NoError(t, err)
		return cfg
	}

	assert.Error(t, load(map[string]string{}).ValidateNotifier(), "redis is the default backend")
	assert.NoError(t, load(map[string]string{"REDIS_URL": "redis://localhost"}).ValidateNotifier())
	assert.Error(t, load(map[string]string{"NOTIFY_BACKEND": "kafka"}).ValidateNotifier())
	assert.NoError(t, load(map[string]string{"NOTIFY_BACKEND": "kafka", "KAFKA_BROKERS": "k1:9092"}).ValidateNotifier())
	assert.NoError(t, load(map[string]string{"NOTIFY_BACKEND": "log"}).ValidateNotifier())
}

func TestLoad_OverridesWinOverEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SQLITE_PATH", "from-env.db")
	t.Setenv("SYNC_PAGE_SIZE", "250")

	cfg, err := config.Load(map[string]string{"SQLITE_PATH": "from-flag.db", "SYNC_PAGE_SIZE": ""})
	require.NoError(t, err)
	assert.Equal(t, "from-flag.db", cfg.SQLitePath)
	assert.Equal(t, 250, cfg.PageSize, "empty overrides fall through")
}
