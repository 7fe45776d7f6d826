package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FEEFLOW_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FEEFLOW_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Solana ---
	setStr(&cfg.Solana.RPCURL, "FEEFLOW_SOLANA_RPC_URL")
	setStr(&cfg.Solana.Commitment, "FEEFLOW_SOLANA_COMMITMENT")
	setStr(&cfg.Solana.CreatorWallet, "FEEFLOW_SOLANA_CREATOR_WALLET")

	// --- Treasury ---
	setStr(&cfg.Treasury.PrivateKey, "FEEFLOW_TREASURY_PRIVATE_KEY")
	setStr(&cfg.Treasury.EncryptedKeyPath, "FEEFLOW_TREASURY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Treasury.KeyPassword, "FEEFLOW_TREASURY_KEY_PASSWORD")

	// --- Oracle ---
	setStr(&cfg.Oracle.BaseURL, "FEEFLOW_ORACLE_BASE_URL")
	setDuration(&cfg.Oracle.CacheTTL, "FEEFLOW_ORACLE_CACHE_TTL")

	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "FEEFLOW_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "FEEFLOW_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FEEFLOW_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FEEFLOW_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FEEFLOW_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FEEFLOW_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FEEFLOW_POSTGRES_SSLMODE")
	setStr(&cfg.Postgres.SSLMode, "FEEFLOW_POSTGRES_SSL_MODE") // compatibility alias
	setInt(&cfg.Postgres.PoolMaxConns, "FEEFLOW_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FEEFLOW_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FEEFLOW_POSTGRES_RUN_MIGRATIONS")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "FEEFLOW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FEEFLOW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FEEFLOW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FEEFLOW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FEEFLOW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FEEFLOW_REDIS_TLS_ENABLED")

	// --- S3 ---
	setStr(&cfg.S3.Endpoint, "FEEFLOW_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FEEFLOW_S3_REGION")
	setStr(&cfg.S3.Bucket, "FEEFLOW_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FEEFLOW_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FEEFLOW_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FEEFLOW_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FEEFLOW_S3_FORCE_PATH_STYLE")

	// --- Ingest ---
	setDuration(&cfg.Ingest.PollInterval, "FEEFLOW_INGEST_POLL_INTERVAL")
	setInt(&cfg.Ingest.SignatureLimit, "FEEFLOW_INGEST_SIGNATURE_LIMIT")
	setDuration(&cfg.Ingest.InterTxDelay, "FEEFLOW_INGEST_INTER_TX_DELAY")
	setDuration(&cfg.Ingest.LockTTL, "FEEFLOW_INGEST_LOCK_TTL")

	// --- Threshold ---
	setStr(&cfg.Threshold.USD, "FEEFLOW_THRESHOLD_USD")
	setInt(&cfg.Threshold.Multiplier, "FEEFLOW_THRESHOLD_MULTIPLIER")
	setInt(&cfg.Threshold.DurationSeconds, "FEEFLOW_THRESHOLD_DURATION_SECONDS")

	// --- Payout ---
	setStr(&cfg.Payout.Cron, "FEEFLOW_PAYOUT_CRON")
	setStr(&cfg.Payout.PoolFraction, "FEEFLOW_PAYOUT_POOL_FRACTION")
	setInt(&cfg.Payout.TopN, "FEEFLOW_PAYOUT_TOP_N")
	setDuration(&cfg.Payout.ScoreWindow, "FEEFLOW_PAYOUT_SCORE_WINDOW")
	setInt(&cfg.Payout.MaxAttempts, "FEEFLOW_PAYOUT_MAX_ATTEMPTS")
	setDuration(&cfg.Payout.RetryBackoff, "FEEFLOW_PAYOUT_RETRY_BACKOFF")
	setInt(&cfg.Payout.Concurrency, "FEEFLOW_PAYOUT_CONCURRENCY")
	setDuration(&cfg.Payout.RescanEvery, "FEEFLOW_PAYOUT_RESCAN_EVERY")

	// --- Archive ---
	setBool(&cfg.Archive.Enabled, "FEEFLOW_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "FEEFLOW_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "FEEFLOW_ARCHIVE_RETENTION_DAYS")

	// --- Server ---
	setBool(&cfg.Server.Enabled, "FEEFLOW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "FEEFLOW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "FEEFLOW_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.AdminAPIKey, "FEEFLOW_SERVER_ADMIN_API_KEY")

	// --- Notify ---
	setStr(&cfg.Notify.TelegramToken, "FEEFLOW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FEEFLOW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "FEEFLOW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "FEEFLOW_NOTIFY_EVENTS")

	// --- Top-level ---
	setStr(&cfg.Mode, "FEEFLOW_MODE")
	setStr(&cfg.LogLevel, "FEEFLOW_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
