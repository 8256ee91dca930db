package cli

import (
	"context"
	"log"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/config"
	"amc-progress-service/internal/infra/memory"
	"amc-progress-service/internal/infra/postgres"
	redisinfra "amc-progress-service/internal/infra/redis"
	"amc-progress-service/internal/infra/sqlite"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backend holds the optional shared infrastructure. Nil members mean the
// service runs on in-process fallbacks.
type backend struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func connectBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
	}
	return b, nil
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
}

// catalog returns the cached question catalog: Postgres-backed when
// configured, otherwise the built-in sample questions.
func (b *backend) catalog(cfg config.Config) app.QuestionCatalog {
	var loader memory.QuestionLoader = memory.NewStaticCatalog(memory.SampleQuestions())
	if b.pool != nil {
		loader = postgres.NewQuestionStore(b.pool)
	}
	ttl := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	if b.redis != nil {
		return redisinfra.NewCatalogRepository(b.redis, loader, ttl)
	}
	return memory.NewCatalogRepository(loader, ttl)
}

// openLocal opens the SQLite progress store and a registry over it.
func openLocal(cfg config.Config) (*sqlite.DB, *app.Registry, error) {
	db, err := sqlite.Open(cfg.Local.Path)
	if err != nil {
		return nil, nil, err
	}
	return db, app.NewRegistry(db.Factory(), app.WithLocation(cfg.Location())), nil
}

// withProgress runs fn against the configured local user.
func withProgress(cfg config.Config, fn func(*app.ProgressService) error) error {
	db, registry, err := openLocal(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	progress, err := registry.For(cfg.Local.UserID)
	if err != nil {
		return err
	}
	for _, notice := range progress.Notices() {
		log.Printf("warning: %s", notice)
	}
	return fn(progress)
}
