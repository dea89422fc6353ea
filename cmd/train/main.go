package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/app"
	"github.com/pageza/alchemorsel-v2/recommender/internal/logger"
	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
)

func main() {
	var opts service.TrainOptions
	pflag.IntVar(&opts.Epochs, "epochs", 0, "maximum epochs (0 keeps the configured value)")
	pflag.IntVar(&opts.BatchSize, "batch-size", 0, "mini-batch size")
	pflag.Float64Var(&opts.LearningRate, "learning-rate", 0, "Adam learning rate")
	pflag.IntSliceVar(&opts.Hidden, "hidden", nil, "hidden layer widths, e.g. 256,128,64")
	pflag.Float64Var(&opts.Dropout, "dropout", 0, "dropout rate")
	pflag.IntVar(&opts.Patience, "patience", 0, "early stopping patience in epochs")
	pflag.IntVar(&opts.ExamplesPerRecipe, "examples-per-recipe", 0, "synthetic examples per recipe")
	pflag.Float64Var(&opts.ValidationSplit, "validation-split", 0, "fraction held out for validation and again for test (default 0.15)")
	pflag.BoolVar(&opts.SelectArchitecture, "select", false, "train every candidate architecture and keep the best")
	pflag.Int64Var(&opts.Seed, "seed", 0, "random seed")
	pflag.DurationVar(&opts.Timeout, "timeout", 0, "abort training after this long")
	pflag.Parse()

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

	if err := run(cfg, log, opts); err != nil {
		log.Error("training failed", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Sync()
}

func run(cfg *config.Config, log *zap.Logger, opts service.TrainOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Recommender.Train(ctx, opts)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
