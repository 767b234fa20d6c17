package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/metaquote/internal/bus"
	"github.com/alanyoungcy/metaquote/internal/cache/redis"
	"github.com/alanyoungcy/metaquote/internal/config"
	"github.com/alanyoungcy/metaquote/internal/directory"
	"github.com/alanyoungcy/metaquote/internal/domain"
	"github.com/alanyoungcy/metaquote/internal/ledger"
	"github.com/alanyoungcy/metaquote/internal/notify"
	"github.com/alanyoungcy/metaquote/internal/platform/metastream"
	"github.com/alanyoungcy/metaquote/internal/service"
	"github.com/alanyoungcy/metaquote/internal/store/postgres"
	"github.com/alanyoungcy/metaquote/internal/stream"
)

// redisKeyPrefix namespaces every Redis key and channel of this service.
const redisKeyPrefix = "metaquote:"

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
// Optional backends are nil when disabled.
type Dependencies struct {
	// Backends
	Postgres    *postgres.Client
	Redis       *redis.Client
	QuoteStore  domain.QuoteStore
	EventStore  domain.StreamEventStore
	Snapshots   domain.SnapshotCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Quote pipeline
	Ledger    *ledger.Ledger
	Dirty     *service.Dirty
	Session   *stream.Session
	Directory *directory.Directory
	Quotes    *service.QuoteService

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Only enabled backends that
// cannot be reached fail wiring; the directory and the feed never do.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL audit trail ---
	if cfg.Postgres.Enabled {
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
		deps.Postgres = pgClient
		deps.QuoteStore = postgres.NewQuoteStore(pool)
		deps.EventStore = postgres.NewStreamEventStore(pool)
	}

	// --- Redis mirror, or an in-process bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			KeyPrefix:  redisKeyPrefix,
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

		deps.Redis = redisClient
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Snapshots = redis.NewSnapshotCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		local := bus.NewLocal()
		closers = append(closers, local.Close)
		deps.SignalBus = local
	}

	// --- Quote pipeline ---
	deps.Dirty = service.NewDirty()
	deps.Ledger = ledger.New(ledger.WithOnChange(deps.Dirty.Mark))
	deps.Session = stream.New(stream.NewSSETransport(), deps.Ledger, stream.Config{
		BaseURL: cfg.Stream.BaseURL,
	}, logger)
	closers = append(closers, func() { _ = deps.Session.Close() })

	dirClient := metastream.NewDirectoryClient(cfg.Directory.BaseURL, cfg.Directory.Timeout.Duration)
	deps.Directory = directory.New(logger)
	deps.Directory.Load(ctx, dirClient)

	deps.Quotes = service.NewQuoteService(deps.Session, deps.Ledger, deps.Directory, deps.Dirty, service.Options{
		Bus:         deps.SignalBus,
		Snapshots:   deps.Snapshots,
		SnapshotTTL: cfg.Redis.SnapshotTTL.Duration,
		Quotes:      deps.QuoteStore,
		Events:      deps.EventStore,
		Directory:   dirClient,
	}, logger)

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
	if deps.Notifier.Enabled() {
		deps.Session.OnStateChange(notify.NewStreamAlerts(deps.Notifier).Handle)
	}

	return deps, cleanup, nil
}
