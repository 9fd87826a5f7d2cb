package config

const EnvPrefix = "POS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv       = "POS_APP_ENV"
	EnvPort         = "POS_APP_PORT"
	EnvLogLevel     = "POS_LOG_LEVEL"
	EnvLogFormat    = "POS_LOG_FORMAT"
	EnvTerminalID   = "POS_TERMINAL_ID"
	EnvTerminalTax  = "POS_TERMINAL_TAX_RATE"
	EnvStorePath    = "POS_STORE_PATH"
	EnvLedgerURL    = "POS_LEDGER_BASE_URL"
	EnvRedisEnabled = "POS_REDIS_ENABLED"
	EnvRedisURL     = "POS_REDIS_URL"

	EnvSyncPollInterval = "POS_SYNC_POLL_INTERVAL"
	EnvSyncBaseDelay    = "POS_SYNC_BASE_DELAY"
	EnvSyncCapDelay     = "POS_SYNC_CAP_DELAY"
	EnvSyncMaxAttempts  = "POS_SYNC_MAX_ATTEMPTS"
	EnvSyncConcurrency  = "POS_SYNC_CONCURRENCY"
)
