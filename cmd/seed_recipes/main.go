package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/corpus"
	"github.com/pageza/alchemorsel-v2/recommender/internal/database"
	"github.com/pageza/alchemorsel-v2/recommender/internal/logger"
)

func main() {
	file := pflag.String("file", "", "YAML recipe file to load instead of the bundled templates")
	pflag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	recipes, err := corpus.Templates()
	if *file != "" {
		data, readErr := os.ReadFile(*file)
		if readErr != nil {
			log.Fatal("failed to read recipe file", zap.String("file", *file), zap.Error(readErr))
		}
		recipes, err = corpus.ParseYAML(data)
	}
	if err != nil {
		log.Fatal("failed to load recipes", zap.Error(err))
	}

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := database.RunMigrations(db, log); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	inserted, err := corpus.NewGormReader(db).Seed(context.Background(), recipes)
	if err != nil {
		log.Fatal("failed to seed recipes", zap.Error(err))
	}
	log.Info("seeded recipes", zap.Int("inserted", inserted), zap.Int("skipped", len(recipes)-inserted))
}
