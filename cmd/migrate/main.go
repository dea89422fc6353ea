package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/database"
	"github.com/pageza/alchemorsel-v2/recommender/internal/logger"
)

func main() {
	status := pflag.Bool("status", false, "list applied migrations after migrating")
	pflag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	db, err := database.Open(cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	if err := database.RunMigrations(db, log); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	if *status && db.Dialector.Name() != "sqlite" {
		var applied []struct {
			Name      string
			AppliedAt time.Time
		}
		if err := db.Table("migrations").Order("name").Find(&applied).Error; err != nil {
			log.Fatal("failed to list migrations", zap.Error(err))
		}
		for _, m := range applied {
			fmt.Printf("%s\t%s\n", m.AppliedAt.Format(time.RFC3339), m.Name)
		}
	}
	log.Info("all migrations applied")
}
