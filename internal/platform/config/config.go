// Package config loads process configuration from defaults, an optional
// config file, .env files and environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	pstrings "linkid/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Database  Database
	Identify  Identify
	Redis     RedisConfig
	RateLimit RateLimit
	Kafka     Kafka
	Log       Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

// Database configures the PostgreSQL connection. An empty URL selects the
// in-memory store.
type Database struct {
	URL             string
	Driver          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	TxIsolation     string
	TxTimeout       time.Duration
}

// Identify tunes the reconciliation retry policy.
type Identify struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// RedisConfig configures the Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimit bounds identify requests per client IP in a fixed window.
// Zero requests disables limiting.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Kafka configures the outbox relay. No brokers disables the relay.
type Kafka struct {
	Brokers      []string
	Topic        string
	ClientID     string
	Partitions   int
	PollInterval time.Duration
	BatchSize    int
}

// Log configures the process logger.
type Log struct {
	Level  string
	Format string
}

// Enabled reports whether a database is configured.
func (d Database) Enabled() bool { return d.URL != "" }

// Enabled reports whether Redis is configured.
func (r RedisConfig) Enabled() bool { return r.URL != "" }

// Enabled reports whether the outbox relay should run.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// SetDefaults registers every key with its default so that environment
// variables bind even when no config file mentions them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", "")
	v.SetDefault("port", "3000")
	v.SetDefault("read_header_timeout", 5*time.Second)
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)

	v.SetDefault("database_url", "")
	v.SetDefault("db_driver", "pgx")
	v.SetDefault("db_max_open_conns", 20)
	v.SetDefault("db_max_idle_conns", 10)
	v.SetDefault("db_conn_max_lifetime", 30*time.Minute)
	v.SetDefault("db_tx_isolation", "read_committed")
	v.SetDefault("db_tx_timeout", 5*time.Second)

	v.SetDefault("identify_max_attempts", 3)
	v.SetDefault("identify_retry_backoff", 20*time.Millisecond)

	v.SetDefault("redis_url", "")
	v.SetDefault("redis_pool_size", 10)
	v.SetDefault("redis_min_idle_conns", 2)
	v.SetDefault("redis_dial_timeout", 5*time.Second)
	v.SetDefault("redis_read_timeout", 3*time.Second)
	v.SetDefault("redis_write_timeout", 3*time.Second)

	v.SetDefault("rate_limit_requests", 0)
	v.SetDefault("rate_limit_window", time.Minute)

	v.SetDefault("kafka_brokers", "")
	v.SetDefault("kafka_topic", "contacts.events")
	v.SetDefault("kafka_client_id", "linkid")
	v.SetDefault("kafka_partitions", 3)
	v.SetDefault("outbox_poll_interval", time.Second)
	v.SetDefault("outbox_batch_size", 100)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// NewViper returns a viper instance with defaults registered, environment
// binding enabled and, when configFile is set, the file loaded. Variables
// from .env in the working directory are exported first; a missing .env is
// not an error.
func NewViper(configFile string) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}
	return v, nil
}

// Load builds and validates the configuration.
func Load(configFile string) (Config, error) {
	v, err := NewViper(configFile)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

// FromViper reads a validated Config out of v.
func FromViper(v *viper.Viper) (Config, error) {
	addr := v.GetString("addr")
	if addr == "" {
		addr = ":" + v.GetString("port")
	}

	cfg := Config{
		Server: Server{
			Addr:              addr,
			ReadHeaderTimeout: v.GetDuration("read_header_timeout"),
			RequestTimeout:    v.GetDuration("request_timeout"),
			ShutdownTimeout:   v.GetDuration("shutdown_timeout"),
		},
		Database: Database{
			URL:             v.GetString("database_url"),
			Driver:          strings.ToLower(v.GetString("db_driver")),
			MaxOpenConns:    v.GetInt("db_max_open_conns"),
			MaxIdleConns:    v.GetInt("db_max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
			TxIsolation:     strings.ToLower(v.GetString("db_tx_isolation")),
			TxTimeout:       v.GetDuration("db_tx_timeout"),
		},
		Identify: Identify{
			MaxAttempts:  v.GetInt("identify_max_attempts"),
			RetryBackoff: v.GetDuration("identify_retry_backoff"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis_url"),
			PoolSize:     v.GetInt("redis_pool_size"),
			MinIdleConns: v.GetInt("redis_min_idle_conns"),
			DialTimeout:  v.GetDuration("redis_dial_timeout"),
			ReadTimeout:  v.GetDuration("redis_read_timeout"),
			WriteTimeout: v.GetDuration("redis_write_timeout"),
		},
		RateLimit: RateLimit{
			Requests: v.GetInt("rate_limit_requests"),
			Window:   v.GetDuration("rate_limit_window"),
		},
		Kafka: Kafka{
			Brokers:      pstrings.DedupeAndTrim(strings.Split(v.GetString("kafka_brokers"), ",")),
			Topic:        v.GetString("kafka_topic"),
			ClientID:     v.GetString("kafka_client_id"),
			Partitions:   v.GetInt("kafka_partitions"),
			PollInterval: v.GetDuration("outbox_poll_interval"),
			BatchSize:    v.GetInt("outbox_batch_size"),
		},
		Log: Log{
			Level:  strings.ToLower(v.GetString("log_level")),
			Format: strings.ToLower(v.GetString("log_format")),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "pgx", "postgres":
	default:
		errs = append(errs, fmt.Errorf("db_driver must be pgx or postgres, got %q", c.Database.Driver))
	}
	switch c.Database.TxIsolation {
	case "serializable", "repeatable_read", "read_committed":
	default:
		errs = append(errs, fmt.Errorf("db_tx_isolation must be read_committed, repeatable_read or serializable, got %q", c.Database.TxIsolation))
	}
	if c.Identify.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("identify_max_attempts must be at least 1"))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, fmt.Errorf("rate_limit_requests must not be negative"))
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit_window must be positive when rate limiting is enabled"))
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		errs = append(errs, fmt.Errorf("kafka_topic is required when kafka_brokers is set"))
	}
	if c.Kafka.Enabled() && c.Kafka.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("outbox_batch_size must be at least 1"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
