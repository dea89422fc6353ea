package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/cache"
	"github.com/pageza/alchemorsel-v2/recommender/internal/cascade"
	"github.com/pageza/alchemorsel-v2/recommender/internal/corpus"
	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/metrics"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/scoring"
)

// Paths a generated recipe can come from
const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

// Generated is the answer to a generate request
type Generated struct {
	Recipe         model.Recipe `json:"recipe"`
	Missing        []string     `json:"missing_ingredients"`
	EstimatedPrice float64      `json:"estimated_price"`
	Score          float64      `json:"score"`
	Source         string       `json:"source"`
	Stage          string       `json:"stage"`
	Fallback       bool         `json:"template_fallback"`
}

// Recommender wires the matcher, cascade, scorer, trained model and model
// store into the generate, suggest and train operations.
type Recommender struct {
	corpus       corpus.Reader
	templates    corpus.Reader
	interactions corpus.InteractionReader
	store        ModelStore
	cache        *cache.Cache
	scorer       *scoring.Scorer
	cascade      *cascade.Cascade
	validate     *validator.Validate
	log          *zap.Logger
	modelCfg     config.ModelConfig
	trainCfg     config.TrainingConfig

	trainMu sync.Mutex

	mu     sync.RWMutex
	active *loadedModel
}

// Option configures a Recommender
type Option func(*Recommender)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Recommender) { r.log = l }
}

// WithCache enables the redis active-model cache and training lock
func WithCache(c *cache.Cache) Option {
	return func(r *Recommender) { r.cache = c }
}

// WithInteractions sets the source of logged selections used for training
func WithInteractions(i corpus.InteractionReader) Option {
	return func(r *Recommender) { r.interactions = i }
}

// WithTemplates replaces the bundled fallback corpus
func WithTemplates(t corpus.Reader) Option {
	return func(r *Recommender) { r.templates = t }
}

// WithScorer replaces the default heuristic scorer
func WithScorer(s *scoring.Scorer) Option {
	return func(r *Recommender) { r.scorer = s }
}

// WithModelConfig sets the served model name and lookup settings
func WithModelConfig(c config.ModelConfig) Option {
	return func(r *Recommender) { r.modelCfg = c }
}

// WithTrainingConfig sets the training defaults
func WithTrainingConfig(c config.TrainingConfig) Option {
	return func(r *Recommender) { r.trainCfg = c }
}

// NewRecommender creates a Recommender reading recipes from reader and
// models from store
func NewRecommender(reader corpus.Reader, store ModelStore, opts ...Option) *Recommender {
	r := &Recommender{
		corpus:    reader,
		templates: corpus.TemplateReader{},
		store:     store,
		scorer:    scoring.NewScorer(scoring.DefaultWeights(), nil),
		cascade:   cascade.New(),
		validate:  newValidator(),
		log:       zap.NewNop(),
		modelCfg: config.ModelConfig{
			Name:     "recipe_recommender",
			Type:     "neural_network",
			TopK:     10,
			CacheTTL: 10 * time.Minute,
		},
		trainCfg: config.TrainingConfig{
			ExamplesPerRecipe: 40,
			MinRecipes:        10,
			Epochs:            100,
			BatchSize:         32,
			Patience:          15,
			Timeout:           30 * time.Minute,
			WidthDivisor:      4,
			Parallel:          2,
			Seed:              42,
			LockTTL:           time.Hour,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// newValidator reports fields by their json names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

func (r *Recommender) validateRequest(req *model.Request) error {
	if req == nil {
		return ValidationError{Field: "request", Message: "is required"}
	}
	if err := r.validate.Struct(req); err != nil {
		return fromValidator(err)
	}
	if !req.CanPurchase && countNonEmpty(req.Available) == 0 {
		return ValidationError{
			Field:   "available_ingredients",
			Message: "at least one ingredient is required when purchasing is not allowed",
		}
	}
	return nil
}

// loadCorpus reads the configured corpus and falls back to the bundled
// templates when it is empty or unreadable. fallback reports the latter.
func (r *Recommender) loadCorpus(ctx context.Context) (recipes []model.Recipe, fallback bool, err error) {
	recipes, err = r.corpus.Recipes(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, err
		}
		r.log.Warn("corpus unavailable, using templates", zap.Error(err))
	}
	if len(recipes) > 0 {
		return recipes, false, nil
	}
	recipes, err = r.templates.Recipes(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("failed to load template corpus: %w", err)
	}
	return recipes, true, nil
}

// Generate selects the best recipe for req and reports what is missing and
// what it costs.
//
// With CanPurchase false the result never lists missing ingredients; when
// nothing can be cooked from the pantry ErrNoCandidate is returned.
// ErrBudgetExceeded is returned only when every candidate costs more than
// the budget.
func (r *Recommender) Generate(ctx context.Context, req *model.Request) (*Generated, error) {
	start := time.Now()
	ranked, info, err := r.rank(ctx, req)
	if err != nil {
		metrics.RecordGenerate(info.source, outcome(err), time.Since(start))
		return nil, err
	}

	best, err := r.affordable(ranked, req)
	if err != nil {
		metrics.RecordGenerate(info.source, outcome(err), time.Since(start))
		return nil, err
	}
	metrics.RecordGenerate(info.source, "success", time.Since(start))

	r.log.Debug("generated recipe",
		zap.String("recipe", best.Recipe.Name),
		zap.String("source", info.source),
		zap.String("stage", info.stage.String()),
		zap.Int("missing", len(best.Missing)),
	)
	return &Generated{
		Recipe:         best.Recipe,
		Missing:        best.Missing,
		EstimatedPrice: best.EstimatedPrice,
		Score:          best.Score,
		Source:         info.source,
		Stage:          info.stage.String(),
		Fallback:       info.fallback,
	}, nil
}

type rankInfo struct {
	source   string
	stage    cascade.Stage
	fallback bool
}

// rank validates req, narrows the corpus with the cascade and orders the
// candidates with the active model or, failing that, the heuristic scorer
func (r *Recommender) rank(ctx context.Context, req *model.Request) ([]model.ScoredCandidate, rankInfo, error) {
	var info rankInfo
	if err := r.validateRequest(req); err != nil {
		return nil, info, err
	}

	recipes, fallback, err := r.loadCorpus(ctx)
	if err != nil {
		return nil, info, err
	}
	result, err := r.cascade.Run(recipes, req)
	if errors.Is(err, cascade.ErrNoCandidate) && !fallback {
		// the configured corpus may simply be missing the dish
		templates, terr := r.templates.Recipes(ctx)
		if terr == nil {
			if tres, terr := r.cascade.Run(templates, req); terr == nil {
				recipes, result, err, fallback = templates, tres, nil, true
			}
		}
	}
	info.stage = result.Stage
	info.fallback = fallback
	metrics.CascadeStageTotal.WithLabelValues(result.Stage.String()).Inc()
	if err != nil {
		return nil, info, err
	}

	ranked, err := r.rankWithModel(ctx, recipes, result.Candidates, req)
	switch {
	case err == nil:
		info.source = SourceModel
		return ranked, info, nil
	case errors.Is(err, ErrModelUnavailable):
		r.log.Debug("using heuristic scorer", zap.Error(err))
	default:
		r.log.Warn("model ranking failed, using heuristic scorer", zap.Error(err))
	}

	info.source = SourceHeuristic
	return r.scorer.Rank(result.Candidates, req), info, nil
}

// affordable walks the ranking for the first candidate within budget. A
// candidate with missing ingredients is never returned when purchase is
// disallowed.
func (r *Recommender) affordable(ranked []model.ScoredCandidate, req *model.Request) (*model.ScoredCandidate, error) {
	var cheapest *model.ScoredCandidate
	for i := range ranked {
		c := &ranked[i]
		if !req.CanPurchase && len(c.Missing) > 0 {
			continue
		}
		if c.Missing == nil {
			c.Missing = []string{}
		}
		if !req.HasBudget() || c.EstimatedPrice <= *req.Budget {
			return c, nil
		}
		if cheapest == nil || c.EstimatedPrice < cheapest.EstimatedPrice {
			cheapest = c
		}
	}
	if cheapest == nil {
		return nil, fmt.Errorf("%w: no candidate can be cooked without purchasing", ErrNoCandidate)
	}
	return nil, fmt.Errorf("%w: cheapest option %q costs %.2f, budget %.2f",
		ErrBudgetExceeded, cheapest.Recipe.Name, cheapest.EstimatedPrice, *req.Budget)
}

func countNonEmpty(list []string) int {
	n := 0
	for _, s := range list {
		if ingredient.Normalize(s) != "" {
			n++
		}
	}
	return n
}

func outcome(err error) string {
	var verr ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrNoCandidate):
		return "no_candidate"
	case errors.Is(err, ErrBudgetExceeded):
		return "budget_exceeded"
	default:
		return "error"
	}
}

// Similar returns up to limit recipes closest to the available ingredients.
// Readers that support embedding search answer directly; otherwise the
// corpus is ranked by ingredient similarity.
func (r *Recommender) Similar(ctx context.Context, available []string, limit int) ([]model.Recipe, error) {
	if countNonEmpty(available) == 0 {
		return nil, ValidationError{Field: "available_ingredients", Message: "is required"}
	}
	if limit <= 0 {
		limit = r.modelCfg.TopK
	}
	if nr, ok := r.corpus.(NearestReader); ok {
		return nr.Nearest(ctx, available, limit)
	}

	recipes, _, err := r.loadCorpus(ctx)
	if err != nil {
		return nil, err
	}
	sims := make([]float64, len(recipes))
	order := make([]int, len(recipes))
	for i := range recipes {
		order[i] = i
		sims[i] = scoring.Similarity(available, recipes[i].Ingredients)
	}
	sort.SliceStable(order, func(a, b int) bool { return sims[order[a]] > sims[order[b]] })
	if len(order) > limit {
		order = order[:limit]
	}
	out := make([]model.Recipe, len(order))
	for i, idx := range order {
		out[i] = recipes[idx]
	}
	return out, nil
}

// RecordSelection logs that a user picked recipeName for req into the
// interaction store, or into the corpus reader when it keeps the log itself.
// Without either this is a no-op.
func (r *Recommender) RecordSelection(ctx context.Context, userID string, req *model.Request, recipeName string) error {
	if strings.TrimSpace(recipeName) == "" {
		return ValidationError{Field: "recipe_name", Message: "is required"}
	}
	if err := r.validateRequest(req); err != nil {
		return err
	}
	sink := r.interactionSink()
	if sink == nil {
		return nil
	}
	return sink.LogInteraction(ctx, &model.UserInteraction{
		UserID:      userID,
		RecipeName:  recipeName,
		Available:   model.JSONBStringArray(ingredient.NormalizeAll(req.Available)),
		Allergies:   model.JSONBStringArray(ingredient.NormalizeAll(req.Allergies)),
		Type:        req.Type,
		Cuisine:     req.Cuisine,
		Healthy:     req.Healthy,
		CanPurchase: req.CanPurchase,
	})
}

func (r *Recommender) interactionSink() InteractionLogger {
	if sink, ok := r.interactions.(InteractionLogger); ok {
		return sink
	}
	if sink, ok := r.corpus.(InteractionLogger); ok {
		return sink
	}
	return nil
}
