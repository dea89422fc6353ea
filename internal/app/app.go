// Package app assembles the engine from configuration for the commands.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/api"
	"github.com/pageza/alchemorsel-v2/recommender/internal/cache"
	"github.com/pageza/alchemorsel-v2/recommender/internal/corpus"
	"github.com/pageza/alchemorsel-v2/recommender/internal/database"
	"github.com/pageza/alchemorsel-v2/recommender/internal/modelstore"
	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
)

// App holds the wired engine and the connections it owns
type App struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Store       *modelstore.Store
	Corpus      corpus.Reader
	Recommender *service.Recommender

	log *zap.Logger
}

// New opens the database, migrates it, connects the optional redis and S3
// backends and builds the Recommender. Redis failures are logged and the
// engine runs without a shared cache.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	db, err := database.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(db, log); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	a := &App{DB: db, log: log}

	storeOpts := []modelstore.Option{modelstore.WithLogger(log)}
	if cfg.S3.Enabled {
		s3cfg, err := config.NewS3Config(ctx, cfg.S3)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to configure S3: %w", err)
		}
		storeOpts = append(storeOpts, modelstore.WithBlobStore(modelstore.NewS3Blobs(s3cfg.Client, s3cfg.BucketName)))
		log.Info("model payloads offloaded to S3", zap.String("bucket", s3cfg.BucketName))
	}
	a.Store = modelstore.New(db, storeOpts...)

	var shared *cache.Cache
	if cfg.Redis.Enabled {
		client, err := database.NewRedisClient(cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, continuing without shared cache", zap.Error(err))
		} else {
			a.Redis = client
			shared = cache.New(client, "alchemorsel")
		}
	}

	gormReader := corpus.NewGormReader(db)
	switch cfg.Corpus.Source {
	case "", "database":
		a.Corpus = gormReader
	case "templates":
		a.Corpus = corpus.TemplateReader{}
	case "http":
		a.Corpus = corpus.NewHTTPReader(cfg.Corpus.URL, cfg.Corpus.Timeout, log)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown corpus source %q", cfg.Corpus.Source)
	}

	a.Recommender = service.NewRecommender(a.Corpus, a.Store,
		service.WithLogger(log),
		service.WithCache(shared),
		service.WithInteractions(gormReader),
		service.WithModelConfig(cfg.Model),
		service.WithTrainingConfig(cfg.Training),
	)
	return a, nil
}

// Checks are the readiness probes of the owned connections
func (a *App) Checks() map[string]api.Check {
	checks := map[string]api.Check{
		"database": func(ctx context.Context) error { return database.HealthCheck(ctx, a.DB) },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases the owned connections
func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, database.Close(a.DB))
	}
	return errors.Join(errs...)
}
