package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"sms-hunter/internal/config"
	"sms-hunter/internal/domain/ports/repository"
	"sms-hunter/internal/infra/db/postgres"
	"sms-hunter/internal/infra/logging"
	"sms-hunter/internal/infra/redis"
	"sms-hunter/internal/infra/store/file"
)

// Backend is the opened status store plus the shared connections behind it.
type Backend struct {
	Repo repository.StatusRepository

	// Redis is set whenever redis.url is configured, whatever the status
	// backend; the hunter lease and the poll limiter use it.
	Redis *redis.Client

	closers []func()
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Open connects the configured status backend.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Backend, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	log := logging.Component(logger, "Store")
	b := &Backend{}

	if cfg.Redis.URL != "" {
		rc, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		b.Redis = rc
		b.closers = append(b.closers, func() { _ = rc.Close() })
	}

	switch cfg.Store.Backend {
	case config.BackendFile:
		b.Repo = file.NewStatusRepo(cfg.Store.Path)
		log.Info().Str("path", cfg.Store.Path).Msg("using file status store")

	case config.BackendRedis:
		b.Repo = redis.NewStatusRepo(b.Redis, cfg.Store.RedisKey, cfg.Redis.TTL)
		log.Info().Str("key", cfg.Store.RedisKey).Msg("using redis status store")

	case config.BackendPostgres:
		pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		repo := postgres.NewStatusRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Repo = repo
		log.Info().Msg("using postgres status store")
	}
	return b, nil
}
