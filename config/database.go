package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"jobstream"`
	Password string `env:"PASSWORD"                envDefault:"jobstream"`
	Name     string `env:"NAME"                    envDefault:"jobstream"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// MaxOpenConns bounds the pool shared by persistence callbacks and validation writes.
	MaxOpenConns int `env:"MAX_OPEN_CONNS" envDefault:"25"`
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
	// PoolSize is the per-node connection pool size. Each dispatcher slot holds
	// one connection during BLPOP, so it must exceed dispatcher concurrency.
	PoolSize int `env:"POOL_SIZE" envDefault:"64"`
}

// StoreConfig controls key retention and transient-failure retries for the shared store.
type StoreConfig struct {
	// Entity is the leading segment of per-job keys (<entity>:{<job_type>:<job_id>}:state).
	Entity string `env:"STORE_ENTITY" envDefault:"message"`

	// StateTTL is the retention window for state and stream keys, refreshed on every write.
	StateTTL time.Duration `env:"STORE_STATE_TTL" envDefault:"1h"`

	// RetryAttempts is the number of attempts for a store operation on transient errors.
	RetryAttempts int `env:"STORE_RETRY_ATTEMPTS" envDefault:"5"`

	// RetryBaseDelay is the first backoff delay; it doubles per attempt up to RetryMaxDelay.
	RetryBaseDelay time.Duration `env:"STORE_RETRY_BASE_DELAY" envDefault:"100ms"`
	RetryMaxDelay  time.Duration `env:"STORE_RETRY_MAX_DELAY"  envDefault:"2s"`
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	if s.Entity == "" {
		s.Entity = "message"
	}
	if s.StateTTL < time.Minute {
		s.StateTTL = time.Minute
	}
	if s.RetryAttempts < 1 {
		s.RetryAttempts = 1
	}
	if s.RetryBaseDelay <= 0 {
		s.RetryBaseDelay = 100 * time.Millisecond
	}
	if s.RetryMaxDelay < s.RetryBaseDelay {
		s.RetryMaxDelay = s.RetryBaseDelay
	}
}
