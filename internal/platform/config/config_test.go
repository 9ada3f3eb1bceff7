package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.False(t, cfg.Database.Enabled(), "no database url selects the in-memory store")
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, "read_committed", cfg.Database.TxIsolation, "advisory locks serialize writers; snapshots would predate them")
	assert.Equal(t, 5*time.Second, cfg.Database.TxTimeout)
	assert.Equal(t, 3, cfg.Identify.MaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Identify.RetryBackoff)
	assert.False(t, cfg.Redis.Enabled())
	assert.Zero(t, cfg.RateLimit.Requests)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "contacts.events", cfg.Kafka.Topic)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestFromViperAddr(t *testing.T) {
	t.Run("port is honoured when addr is unset", func(t *testing.T) {
		v := newTestViper()
		v.Set("port", "8081")
		cfg, err := FromViper(v)
		require.NoError(t, err)
		assert.Equal(t, ":8081", cfg.Server.Addr)
	})

	t.Run("addr wins over port", func(t *testing.T) {
		v := newTestViper()
		v.Set("port", "8081")
		v.Set("addr", "127.0.0.1:9000")
		cfg, err := FromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	})
}

func TestFromViperKafkaBrokers(t *testing.T) {
	v := newTestViper()
	v.Set("kafka_brokers", " broker-1:9092, broker-2:9092 ,broker-1:9092,")
	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
}

func TestFromViperValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{"unknown driver", "db_driver", "mysql", "db_driver"},
		{"unknown isolation", "db_tx_isolation", "chaos", "db_tx_isolation"},
		{"no attempts", "identify_max_attempts", 0, "identify_max_attempts"},
		{"negative rate limit", "rate_limit_requests", -1, "rate_limit_requests"},
		{"unknown log format", "log_format", "xml", "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			v.Set(tt.key, tt.value)
			_, err := FromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("rate limit without window", func(t *testing.T) {
		v := newTestViper()
		v.Set("rate_limit_requests", 10)
		v.Set("rate_limit_window", 0)
		_, err := FromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate_limit_window")
	})
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://linkid@localhost/linkid")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("RATE_LIMIT_REQUESTS", "50")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 50, cfg.RateLimit.Requests)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("addr: \":4000\"\nidentify_max_attempts: 5\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Identify.MaxAttempts)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
