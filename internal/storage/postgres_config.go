package storage

import "time"

// PostgresConfig describes how the repository initialises its Postgres
// connection pool.
type PostgresConfig struct {
	DSN                 string
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	AcquireTimeout      time.Duration
	ApplicationName     string
}

// Option adjusts the Postgres repository configuration.
type Option func(*PostgresConfig)

// WithMaxConnections caps the pool size.
func WithMaxConnections(n int32) Option {
	return func(cfg *PostgresConfig) {
		if n > 0 {
			cfg.MaxConnections = n
		}
	}
}

// WithMinConnections keeps a floor of idle connections warm.
func WithMinConnections(n int32) Option {
	return func(cfg *PostgresConfig) {
		if n >= 0 {
			cfg.MinConnections = n
		}
	}
}

// WithMaxConnLifetime bounds how long a pooled connection lives.
func WithMaxConnLifetime(d time.Duration) Option {
	return func(cfg *PostgresConfig) {
		if d > 0 {
			cfg.MaxConnLifetime = d
		}
	}
}

// WithMaxConnIdleTime bounds how long an idle connection is kept.
func WithMaxConnIdleTime(d time.Duration) Option {
	return func(cfg *PostgresConfig) {
		if d > 0 {
			cfg.MaxConnIdleTime = d
		}
	}
}

// WithHealthCheckInterval sets the pool's background health check period.
func WithHealthCheckInterval(d time.Duration) Option {
	return func(cfg *PostgresConfig) {
		if d > 0 {
			cfg.HealthCheckInterval = d
		}
	}
}

// WithAcquireTimeout bounds how long a query waits for a connection.
func WithAcquireTimeout(d time.Duration) Option {
	return func(cfg *PostgresConfig) {
		if d > 0 {
			cfg.AcquireTimeout = d
		}
	}
}

// WithApplicationName sets the application_name reported to Postgres.
func WithApplicationName(name string) Option {
	return func(cfg *PostgresConfig) {
		if name != "" {
			cfg.ApplicationName = name
		}
	}
}

func newPostgresConfig(dsn string, opts ...Option) PostgresConfig {
	cfg := PostgresConfig{DSN: dsn}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
