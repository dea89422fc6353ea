package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/app"
	"github.com/pageza/alchemorsel-v2/recommender/internal/logger"
	"github.com/pageza/alchemorsel-v2/recommender/internal/router"
	"github.com/pageza/alchemorsel-v2/recommender/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialise engine", zap.Error(err))
	}
	defer a.Close()

	srv := server.New(router.Deps{
		Config:  cfg,
		Log:     log,
		Service: a.Recommender,
		Redis:   a.Redis,
		Checks:  a.Checks(),
	})

	log.Info("starting server",
		zap.String("environment", string(cfg.Environment)),
		zap.String("corpus", cfg.Corpus.Source),
		zap.String("model", cfg.Model.Name),
	)
	if err := srv.Run(ctx); err != nil {
		log.Error("server error", zap.Error(err))
		return
	}
	log.Info("server stopped")
}
