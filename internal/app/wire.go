package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/degenflap/feeflow/internal/blob/s3"
	"github.com/degenflap/feeflow/internal/cache/redis"
	"github.com/degenflap/feeflow/internal/config"
	"github.com/degenflap/feeflow/internal/crypto"
	"github.com/degenflap/feeflow/internal/domain"
	"github.com/degenflap/feeflow/internal/notify"
	"github.com/degenflap/feeflow/internal/oracle"
	"github.com/degenflap/feeflow/internal/platform/coingecko"
	"github.com/degenflap/feeflow/internal/platform/solana"
	"github.com/degenflap/feeflow/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	DepositStore   domain.DepositStore
	AggregateStore domain.AggregateStore
	EventStore     domain.EventStore
	PlayerStore    domain.PlayerStore
	PayoutStore    domain.PayoutStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Chain access and pricing
	Solana *solana.Client
	Oracle *oracle.Oracle
	Signer solana.TxSigner // nil unless the mode settles payouts

	// Notifications
	Notifier *notify.Notifier
	Alerts   *notify.PipelineAlerts
}

// needsSigner returns true for modes that settle payouts on chain.
func needsSigner(mode string) bool {
	switch mode {
	case "payout", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that run the cold-storage archiver.
func needsS3(mode string) bool {
	switch mode {
	case "payout", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.DepositStore = postgres.NewDepositStore(pool)
	deps.AggregateStore = postgres.NewAggregateStore(pool)
	deps.EventStore = postgres.NewEventStore(pool)
	deps.PlayerStore = postgres.NewPlayerStore(pool)
	deps.PayoutStore = postgres.NewPayoutStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Solana RPC and the price oracle ---
	deps.Solana = solana.NewClient(cfg.Solana.RPCURL, cfg.Solana.Commitment)
	deps.Oracle = oracle.New(
		coingecko.NewClient(cfg.Oracle.BaseURL),
		deps.PriceCache,
		cfg.Oracle.CacheTTL.Duration,
		logger,
	)

	// --- Treasury signer (only for modes that settle payouts) ---
	if needsSigner(mode) {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Treasury.PrivateKey,
			EncryptedKeyPath: cfg.Treasury.EncryptedKeyPath,
			KeyPassword:      cfg.Treasury.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury key: %w", err)
		}
		signer, err := crypto.NewSigner(key)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury signer: %w", err)
		}
		deps.Signer = signer
	}

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled && needsS3(mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.BlobReader,
			deps.DepositStore,
			deps.EventStore,
			deps.PayoutStore,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerts = notify.NewPipelineAlerts(deps.Notifier)

	return deps, cleanup, nil
}
