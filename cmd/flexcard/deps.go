package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/config"
	"github.com/boddenberg/flexcard-bfa-go/internal/handler"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/archive"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/cache"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/events"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/memstore"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/flexcard-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/flexcard-bfa-go/internal/port"
)

// dependencies are the backing services selected by configuration.
type dependencies struct {
	store   port.Store
	events  port.EventPublisher
	archive port.CardArchive
	claims  port.ClaimStore
	health  map[string]handler.Pinger
	closers []func() error
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

func retryConfig(cfg *config.Config) resilience.Config {
	return resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
}

// openPostgres connects with retries so the service can start alongside
// its database.
func openPostgres(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.Store, error) {
	var store *postgres.Store
	err := resilience.RetryWithBackoff(ctx, retryConfig(cfg), func() error {
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("database not ready", zap.Error(err))
			return err
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return store, nil
}

func openDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	d := &dependencies{health: map[string]handler.Pinger{}}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	// --- Store ---
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		d.store = memstore.New()
	case "postgres":
		pg, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { pg.Close(); return nil })
		if err := pg.Migrate(ctx); err != nil {
			return nil, err
		}
		d.store = pg
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	d.health["database"] = d.store

	// --- View de-duplication claims ---
	if cfg.RedisAddr != "" {
		var rdb *cache.RedisClaims
		err := resilience.RetryWithBackoff(ctx, retryConfig(cfg), func() error {
			client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			if err != nil {
				logger.Warn("redis not ready", zap.Error(err))
				return err
			}
			rdb = cache.NewRedisClaims(client, "flexcard:")
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		d.closers = append(d.closers, rdb.Close)
		d.claims = rdb
		logger.Info("view de-duplication backed by redis", zap.String("addr", cfg.RedisAddr))
	} else {
		mem := cache.NewMemoryClaims(cfg.ViewDedupTTL)
		d.closers = append(d.closers, mem.Close)
		d.claims = mem
	}

	// --- Events ---
	pub, err := openEvents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, pub.Close)
	d.events = pub

	// --- Archive ---
	if cfg.S3Bucket != "" {
		s3, err := archive.NewS3(ctx, archive.Options{
			Endpoint:       cfg.S3Endpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			ForcePathStyle: cfg.S3ForcePathStyle,
			URLTTL:         cfg.ExportURLTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 archive: %w", err)
		}
		d.archive = s3
		logger.Info("card archive enabled", zap.String("bucket", cfg.S3Bucket))
	} else {
		d.archive = archive.Nop{}
	}

	ok = true
	return d, nil
}

func openEvents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (port.EventPublisher, error) {
	var dial func() (port.EventPublisher, error)
	switch cfg.EventsBackend {
	case "", "none":
		return events.Nop{}, nil
	case "rabbitmq":
		dial = func() (port.EventPublisher, error) { return events.NewRabbitMQ(cfg.RabbitMQURL) }
	case "nats":
		dial = func() (port.EventPublisher, error) { return events.NewNATS(cfg.NATSURL) }
	default:
		return nil, fmt.Errorf("unknown EVENTS_BACKEND %q", cfg.EventsBackend)
	}

	var pub port.EventPublisher
	err := resilience.RetryWithBackoff(ctx, retryConfig(cfg), func() error {
		p, err := dial()
		if err != nil {
			logger.Warn("event broker not ready", zap.String("backend", cfg.EventsBackend), zap.Error(err))
			return err
		}
		pub = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.EventsBackend, err)
	}
	logger.Info("card events enabled", zap.String("backend", cfg.EventsBackend))
	return pub, nil
}
