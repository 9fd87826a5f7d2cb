package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Terminal     TerminalConfig
	Store        StoreConfig
	Sync         SyncConfig
	Ledger       LedgerConfig
	Connectivity ConnectivityConfig
	Redis        RedisConfig
	Cron         CronConfig
	LedgerSim    LedgerSimConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// StoreOnly is the subset of Config the migrate tool needs.
type StoreOnly struct {
	App   AppConfig
	Store StoreConfig
}

// LoadStore reads only the app and store settings so migrations can run on a
// terminal that has no ledger configured yet.
func LoadStore() (*StoreOnly, error) {
	var cfg StoreOnly
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"POS_APP_ENV" required:"true"`
	Port         string   `envconfig:"POS_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"POS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"POS_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"POS_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"POS_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type TerminalConfig struct {
	ID       string `envconfig:"POS_TERMINAL_ID" required:"true"`
	StoreID  string `envconfig:"POS_TERMINAL_STORE_ID"`
	Currency string `envconfig:"POS_TERMINAL_CURRENCY" default:"USD"`
	TaxRate  string `envconfig:"POS_TERMINAL_TAX_RATE" default:"0"`
}

type StoreConfig struct {
	Path        string        `envconfig:"POS_STORE_PATH" default:"pos.db"`
	BusyTimeout time.Duration `envconfig:"POS_STORE_BUSY_TIMEOUT" default:"5s"`
	WAL         bool          `envconfig:"POS_STORE_WAL" default:"true"`
	AutoMigrate bool          `envconfig:"POS_STORE_AUTO_MIGRATE" default:"true"`
}

type SyncConfig struct {
	PollInterval     time.Duration `envconfig:"POS_SYNC_POLL_INTERVAL" default:"15s"`
	BaseDelay        time.Duration `envconfig:"POS_SYNC_BASE_DELAY" default:"1s"`
	CapDelay         time.Duration `envconfig:"POS_SYNC_CAP_DELAY" default:"5m"`
	MaxAttempts      int           `envconfig:"POS_SYNC_MAX_ATTEMPTS" default:"8"`
	SubmitTimeout    time.Duration `envconfig:"POS_SYNC_SUBMIT_TIMEOUT" default:"10s"`
	BatchSize        int           `envconfig:"POS_SYNC_BATCH_SIZE" default:"50"`
	Concurrency      int           `envconfig:"POS_SYNC_CONCURRENCY" default:"1"`
	SubmitRatePerSec float64       `envconfig:"POS_SYNC_SUBMIT_RATE_PER_SEC" default:"20"`
	LockTTL          time.Duration `envconfig:"POS_SYNC_LOCK_TTL" default:"2m"`
}

func (s SyncConfig) validate() error {
	if s.MaxAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvSyncMaxAttempts)
	}
	if s.BaseDelay <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncBaseDelay)
	}
	if s.CapDelay < s.BaseDelay {
		return fmt.Errorf("%s must not be lower than %s", EnvSyncCapDelay, EnvSyncBaseDelay)
	}
	return nil
}

type LedgerConfig struct {
	BaseURL string        `envconfig:"POS_LEDGER_BASE_URL" required:"true"`
	Timeout time.Duration `envconfig:"POS_LEDGER_TIMEOUT" default:"10s"`
	APIKey  string        `envconfig:"POS_LEDGER_API_KEY"`
}

type ConnectivityConfig struct {
	LivenessInterval time.Duration `envconfig:"POS_CONNECTIVITY_LIVENESS_INTERVAL" default:"10s"`
	LivenessTimeout  time.Duration `envconfig:"POS_CONNECTIVITY_LIVENESS_TIMEOUT" default:"3s"`
}

type RedisConfig struct {
	Enabled      bool          `envconfig:"POS_REDIS_ENABLED" default:"false"`
	URL          string        `envconfig:"POS_REDIS_URL"`
	Address      string        `envconfig:"POS_REDIS_ADDR"`
	Password     string        `envconfig:"POS_REDIS_PASSWORD"`
	DB           int           `envconfig:"POS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"POS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"POS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"POS_CRON_INTERVAL" default:"1h"`
	SyncedRetention time.Duration `envconfig:"POS_CRON_SYNCED_RETENTION" default:"720h"`
	CatalogRefresh  bool          `envconfig:"POS_CRON_CATALOG_REFRESH" default:"true"`
}

type LedgerSimConfig struct {
	Port           string        `envconfig:"POS_LEDGER_SIM_PORT" default:"9090"`
	IdempotencyTTL time.Duration `envconfig:"POS_LEDGER_SIM_IDEMPOTENCY_TTL" default:"720h"`
	SeedFile       string        `envconfig:"POS_LEDGER_SIM_SEED_FILE"`
	RateLimit      int64         `envconfig:"POS_LEDGER_SIM_RATE_LIMIT" default:"0"`
	RateWindow     time.Duration `envconfig:"POS_LEDGER_SIM_RATE_WINDOW" default:"1s"`
}

// LoadLedgerSim reads the settings the ledger simulator runs with.
func LoadLedgerSim() (*LedgerSimOnly, error) {
	var cfg LedgerSimOnly
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type LedgerSimOnly struct {
	App       AppConfig
	Redis     RedisConfig
	LedgerSim LedgerSimConfig
}
