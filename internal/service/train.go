package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/internal/dataset"
	"github.com/pageza/alchemorsel-v2/recommender/internal/features"
	"github.com/pageza/alchemorsel-v2/recommender/internal/metrics"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/modelstore"
	"github.com/pageza/alchemorsel-v2/recommender/internal/nn"
)

// TrainOptions override the configured training defaults. Zero values keep
// the default.
type TrainOptions struct {
	Epochs             int           `json:"epochs" validate:"omitempty,gte=1,lte=1000"`
	BatchSize          int           `json:"batch_size" validate:"omitempty,gte=1,lte=4096"`
	LearningRate       float64       `json:"learning_rate" validate:"omitempty,gt=0,lte=1"`
	Hidden             []int         `json:"hidden_layers" validate:"omitempty,dive,gte=1,lte=4096"`
	Dropout            float64       `json:"dropout" validate:"omitempty,gte=0,lt=1"`
	Patience           int           `json:"patience" validate:"omitempty,gte=0"`
	ExamplesPerRecipe  int           `json:"examples_per_recipe" validate:"omitempty,gte=1"`
	ValidationSplit    float64       `json:"validation_split" validate:"omitempty,gt=0,lte=0.3"`
	SelectArchitecture bool          `json:"select_architecture"`
	Seed               int64         `json:"seed"`
	Timeout            time.Duration `json:"-"`
}

// TrainResult describes a finished training run
type TrainResult struct {
	Success      bool       `json:"success"`
	ModelID      uuid.UUID  `json:"model_id"`
	Version      string     `json:"version"`
	Architecture string     `json:"architecture,omitempty"`
	Metrics      nn.Metrics `json:"metrics"`
	Examples     int        `json:"examples"`
	Synthetic    bool       `json:"synthetic_data"`
	Epochs       int        `json:"epochs"`
	BestEpoch    int        `json:"best_epoch"`
	StoppedEarly bool       `json:"stopped_early"`
}

// trainedModel is the network chosen by a run. release drops the networks
// that lost a selection run; it must only be called once the winner is
// stored.
type trainedModel struct {
	net          *nn.Network
	history      *nn.History
	metrics      nn.Metrics
	architecture string
	release      func()
}

// Train builds a model from the corpus, stores it and activates it.
//
// Only one run proceeds at a time per process and, with redis configured,
// per deployment; a concurrent call gets ErrTrainingInProgress. A corpus
// smaller than the configured minimum gets ErrInsufficientData. A failed
// save leaves the previously active model in place.
func (r *Recommender) Train(ctx context.Context, opts TrainOptions) (*TrainResult, error) {
	if err := r.validate.Struct(opts); err != nil {
		return nil, fromValidator(err)
	}
	if !r.trainMu.TryLock() {
		return nil, ErrTrainingInProgress
	}
	defer r.trainMu.Unlock()

	lock, ok, err := r.cache.TryLock(ctx, "train:"+r.modelCfg.Name, r.trainCfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire training lock: %w", err)
	}
	if !ok {
		return nil, ErrTrainingInProgress
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.Warn("failed to release training lock", zap.Error(err))
		}
	}()

	start := time.Now()
	res, err := r.train(ctx, opts)
	acc := 0.0
	if res != nil {
		acc = res.Metrics.Accuracy
	}
	metrics.RecordTraining(err, acc, time.Since(start))
	if err != nil {
		r.log.Error("training failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, err
	}
	r.log.Info("training finished",
		zap.String("model_id", res.ModelID.String()),
		zap.String("version", res.Version),
		zap.Float64("accuracy", res.Metrics.Accuracy),
		zap.Float64("f1", res.Metrics.F1),
		zap.Int("epochs", res.Epochs),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (r *Recommender) train(ctx context.Context, opts TrainOptions) (*TrainResult, error) {
	recipes, err := r.trainingCorpus(ctx)
	if err != nil {
		return nil, err
	}
	if len(recipes) < r.trainCfg.MinRecipes {
		return nil, fmt.Errorf("%w: corpus has %d recipes, at least %d are needed",
			ErrInsufficientData, len(recipes), r.trainCfg.MinRecipes)
	}

	var interactions []model.UserInteraction
	if r.interactions != nil {
		if interactions, err = r.interactions.Interactions(ctx); err != nil {
			r.log.Warn("interaction log unavailable, training on synthetic data", zap.Error(err))
			interactions = nil
		}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = r.trainCfg.Seed
	}
	rng := rand.New(rand.NewSource(seed))

	vocab := features.BuildVocabulary(recipes)
	stats := features.ComputeStats(recipes)
	enc := features.NewEncoder(vocab, &stats)

	perRecipe := opts.ExamplesPerRecipe
	if perRecipe == 0 {
		perRecipe = r.trainCfg.ExamplesPerRecipe
	}
	genOpts := []dataset.Option{dataset.WithExamplesPerRecipe(perRecipe)}
	if r.trainCfg.MinLogged > 0 {
		genOpts = append(genOpts, dataset.WithMinLogged(r.trainCfg.MinLogged))
	}
	gen := dataset.NewGenerator(enc, rng, genOpts...)
	examples, synthetic, err := gen.Generate(recipes, interactions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}
	split := dataset.SplitHoldout(examples, rng, opts.ValidationSplit)
	if len(split.Train) == 0 {
		return nil, fmt.Errorf("%w: %d examples leave no training partition", ErrInsufficientData, len(examples))
	}

	cfg := r.networkConfig(opts, enc.RequestDim(), len(recipes), seed)
	r.log.Info("training started",
		zap.Int("recipes", len(recipes)),
		zap.Int("examples", len(examples)),
		zap.Bool("synthetic", synthetic),
		zap.Int("train", len(split.Train)),
		zap.Int("validation", len(split.Validation)),
		zap.Int("test", len(split.Test)),
		zap.String("vocabulary", vocab.Version()),
	)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = r.trainCfg.Timeout
	}
	fitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	trained, err := r.fit(fitCtx, cfg, opts.SelectArchitecture, split)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(recipes))
	for i, rec := range recipes {
		labels[i] = rec.Name
	}
	version := time.Now().UTC().Format("20060102T150405Z")
	best := trained.history.Best()
	row, err := r.store.Put(ctx, trained.net, modelstore.Meta{
		Name:              r.modelCfg.Name,
		Type:              r.modelCfg.Type,
		Version:           version,
		TrainingDataSize:  len(examples),
		VocabularyVersion: vocab.Version(),
		Metadata: ModelMetadata{
			Vocabulary:   vocab,
			Stats:        stats,
			Labels:       labels,
			Config:       trained.net.Config(),
			Architecture: trained.architecture,
			Metrics:      trained.metrics,
			Synthetic:    synthetic,
			BestEpoch:    best.Epoch,
			StoppedEarly: trained.history.StoppedEarly,
			CorpusSize:   len(recipes),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save model: %w", err)
	}
	// the winner is persisted, the losing candidates can go
	trained.release()

	if err := r.store.SaveHistory(ctx, row.ID, historyRows(trained.history)); err != nil {
		r.log.Warn("failed to save training history", zap.String("model_id", row.ID.String()), zap.Error(err))
	}
	if err := r.store.Activate(ctx, row.ID); err != nil {
		return nil, fmt.Errorf("failed to activate model %s: %w", row.ID, err)
	}
	r.invalidate(ctx)

	return &TrainResult{
		Success:      true,
		ModelID:      row.ID,
		Version:      version,
		Architecture: trained.architecture,
		Metrics:      trained.metrics,
		Examples:     len(examples),
		Synthetic:    synthetic,
		Epochs:       len(trained.history.Epochs),
		BestEpoch:    best.Epoch,
		StoppedEarly: trained.history.StoppedEarly,
	}, nil
}

// trainingCorpus reads the configured corpus. The bundled templates stand in
// only for an empty corpus; a read error aborts the run so an outage never
// replaces the active model.
func (r *Recommender) trainingCorpus(ctx context.Context) ([]model.Recipe, error) {
	recipes, err := r.corpus.Recipes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	if len(recipes) > 0 {
		return recipes, nil
	}
	r.log.Warn("corpus is empty, training on templates")
	if recipes, err = r.templates.Recipes(ctx); err != nil {
		return nil, fmt.Errorf("failed to load template corpus: %w", err)
	}
	return recipes, nil
}

func (r *Recommender) networkConfig(opts TrainOptions, inputs, outputs int, seed int64) nn.Config {
	cfg := nn.DefaultConfig()
	cfg.InputDim = inputs
	cfg.OutputDim = outputs
	cfg.Seed = seed
	if r.trainCfg.Epochs > 0 {
		cfg.Epochs = r.trainCfg.Epochs
	}
	if r.trainCfg.BatchSize > 0 {
		cfg.BatchSize = r.trainCfg.BatchSize
	}
	cfg.Patience = r.trainCfg.Patience

	if opts.Epochs > 0 {
		cfg.Epochs = opts.Epochs
	}
	if opts.BatchSize > 0 {
		cfg.BatchSize = opts.BatchSize
	}
	if opts.LearningRate > 0 {
		cfg.LearningRate = opts.LearningRate
	}
	if len(opts.Hidden) > 0 {
		cfg.Hidden = append([]int(nil), opts.Hidden...)
	}
	if opts.Dropout > 0 {
		cfg.Dropout = opts.Dropout
	}
	if opts.Patience > 0 {
		cfg.Patience = opts.Patience
	}
	return cfg
}

// fit trains one network or, with selectArch, every selection architecture
// in parallel and keeps the most accurate
func (r *Recommender) fit(ctx context.Context, cfg nn.Config, selectArch bool, split dataset.Split) (*trainedModel, error) {
	if selectArch {
		archs := nn.SelectionArchitectures(r.trainCfg.WidthDivisor)
		sel, err := nn.SelectBest(ctx, cfg, archs, split, r.trainCfg.Parallel, func(a nn.Architecture, s nn.EpochStats) {
			metrics.TrainingEpochs.Inc()
			r.log.Debug("epoch", zap.String("architecture", a.Name), zap.Int("epoch", s.Epoch),
				zap.Float64("loss", s.Loss), zap.Float64("val_loss", s.ValLoss))
		})
		if err != nil {
			return nil, fmt.Errorf("model selection failed: %w", err)
		}
		best := sel.Best()
		for _, c := range sel.Candidates {
			r.log.Info("candidate evaluated",
				zap.String("architecture", c.Architecture.Name),
				zap.Float64("accuracy", c.Metrics.Accuracy),
				zap.Float64("f1", c.Metrics.F1),
			)
		}
		return &trainedModel{
			net:          best.Network,
			history:      best.History,
			metrics:      best.Metrics,
			architecture: best.Architecture.Name,
			release:      sel.Release,
		}, nil
	}

	net, err := nn.New(cfg)
	if err != nil {
		return nil, err
	}
	history, err := net.Fit(ctx, split.Train, split.Validation, func(s nn.EpochStats) {
		metrics.TrainingEpochs.Inc()
		r.log.Debug("epoch", zap.Int("epoch", s.Epoch), zap.Float64("loss", s.Loss),
			zap.Float64("val_loss", s.ValLoss), zap.Float64("learning_rate", s.LearningRate))
	})
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}

	eval := split.Test
	if len(eval) == 0 {
		eval = split.Validation
	}
	if len(eval) == 0 {
		eval = split.Train
	}
	m, err := net.Evaluate(eval)
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %w", err)
	}
	return &trainedModel{net: net, history: history, metrics: m, release: func() {}}, nil
}

func historyRows(h *nn.History) []model.TrainingHistory {
	rows := make([]model.TrainingHistory, len(h.Epochs))
	for i, e := range h.Epochs {
		rows[i] = model.TrainingHistory{
			Epoch:        e.Epoch,
			Loss:         e.Loss,
			Accuracy:     e.Accuracy,
			ValLoss:      e.ValLoss,
			ValAccuracy:  e.ValAccuracy,
			LearningRate: e.LearningRate,
		}
	}
	return rows
}

// Activate makes a stored model the served one
func (r *Recommender) Activate(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Activate(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

// Models lists stored models, newest first. An empty name lists the served
// model's versions.
func (r *Recommender) Models(ctx context.Context, name string) ([]model.MLModel, error) {
	if name == "" {
		name = r.modelCfg.Name
	}
	return r.store.List(ctx, name)
}

// History returns the per-epoch training history of a model
func (r *Recommender) History(ctx context.Context, id uuid.UUID) ([]model.TrainingHistory, error) {
	if _, err := r.store.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return r.store.History(ctx, id)
}
