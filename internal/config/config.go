// Package config defines the top-level configuration for the feeflow backend
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by FEEFLOW_* environment variables.
type Config struct {
	Solana    SolanaConfig    `toml:"solana"`
	Treasury  TreasuryConfig  `toml:"treasury"`
	Oracle    OracleConfig    `toml:"oracle"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Ingest    IngestConfig    `toml:"ingest"`
	Threshold ThresholdConfig `toml:"threshold"`
	Payout    PayoutConfig    `toml:"payout"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// SolanaConfig holds the RPC endpoint and the tracked creator wallet.
type SolanaConfig struct {
	RPCURL        string `toml:"rpc_url"`
	Commitment    string `toml:"commitment"`
	CreatorWallet string `toml:"creator_wallet"`
}

// TreasuryConfig holds the key material used to sign payout transfers. Either
// the raw base58 key or an encrypted key file plus password must be set for
// modes that settle payouts.
type TreasuryConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OracleConfig holds the price source endpoint and cache behaviour.
type OracleConfig struct {
	BaseURL  string   `toml:"base_url"`
	CacheTTL duration `toml:"cache_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// IngestConfig holds deposit watcher parameters.
type IngestConfig struct {
	PollInterval   duration `toml:"poll_interval"`
	SignatureLimit int      `toml:"signature_limit"`
	InterTxDelay   duration `toml:"inter_tx_delay"`
	LockTTL        duration `toml:"lock_ttl"`
}

// ThresholdConfig holds threshold event engine parameters. USD is a decimal
// string so the threshold never picks up float rounding.
type ThresholdConfig struct {
	USD             string `toml:"usd"`
	Multiplier      int    `toml:"multiplier"`
	DurationSeconds int    `toml:"duration_seconds"`
}

// PayoutConfig holds payout scheduler and settlement parameters.
type PayoutConfig struct {
	Cron         string   `toml:"cron"`
	PoolFraction string   `toml:"pool_fraction"`
	TopN         int      `toml:"top_n"`
	ScoreWindow  duration `toml:"score_window"`
	MaxAttempts  int      `toml:"max_attempts"`
	RetryBackoff duration `toml:"retry_backoff"`
	Concurrency  int      `toml:"concurrency"`
	RescanEvery  duration `toml:"rescan_every"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	AdminAPIKey string   `toml:"admin_api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:     "https://api.devnet.solana.com",
			Commitment: "confirmed",
		},
		Oracle: OracleConfig{
			BaseURL:  "https://api.coingecko.com",
			CacheTTL: duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "feeflow",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "feeflow-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Ingest: IngestConfig{
			PollInterval:   duration{30 * time.Second},
			SignatureLimit: 10,
			InterTxDelay:   duration{time.Second},
			LockTTL:        duration{2 * time.Minute},
		},
		Threshold: ThresholdConfig{
			USD:             "500",
			Multiplier:      5,
			DurationSeconds: 60,
		},
		Payout: PayoutConfig{
			Cron:         "0 0 * * *",
			PoolFraction: "0.30",
			TopN:         10,
			ScoreWindow:  duration{24 * time.Hour},
			MaxAttempts:  5,
			RetryBackoff: duration{30 * time.Second},
			Concurrency:  4,
			RescanEvery:  duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Cron:          "0 3 1 * *",
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"threshold_event", "payout_sent", "payout_failed", "payout_exhausted", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":  true,
	"payout": true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, payout, server, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Solana: the tracked creator wallet is required whenever ingestion runs.
	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if (mode == "watch" || mode == "full") && c.Solana.CreatorWallet == "" {
		errs = append(errs, "solana: creator_wallet must be set for mode "+c.Mode)
	}

	// Treasury: at least one key source must be specified for settling modes.
	if mode == "payout" || mode == "full" {
		if c.Treasury.PrivateKey == "" && c.Treasury.EncryptedKeyPath == "" {
			errs = append(errs, "treasury: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Treasury.EncryptedKeyPath != "" && c.Treasury.KeyPassword == "" {
			errs = append(errs, "treasury: key_password is required when encrypted_key_path is set")
		}
	}

	// Oracle
	if c.Oracle.BaseURL == "" {
		errs = append(errs, "oracle: base_url must not be empty")
	}
	if c.Oracle.CacheTTL.Duration <= 0 {
		errs = append(errs, "oracle: cache_ttl must be positive")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only required when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}

	// Ingest
	if c.Ingest.PollInterval.Duration <= 0 {
		errs = append(errs, "ingest: poll_interval must be positive")
	}
	if c.Ingest.SignatureLimit < 1 {
		errs = append(errs, "ingest: signature_limit must be >= 1")
	}

	// Threshold
	if c.Threshold.Multiplier < 1 {
		errs = append(errs, "threshold: multiplier must be >= 1")
	}
	if c.Threshold.DurationSeconds < 1 {
		errs = append(errs, "threshold: duration_seconds must be >= 1")
	}

	// Payout
	if c.Payout.TopN < 1 {
		errs = append(errs, "payout: top_n must be >= 1")
	}
	if c.Payout.MaxAttempts < 1 {
		errs = append(errs, "payout: max_attempts must be >= 1")
	}
	if c.Payout.Concurrency < 1 {
		errs = append(errs, "payout: concurrency must be >= 1")
	}
	if c.Payout.ScoreWindow.Duration <= 0 {
		errs = append(errs, "payout: score_window must be positive")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
