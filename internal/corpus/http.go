package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// ErrUnavailable is returned when the remote corpus fails and no earlier
// snapshot exists
var ErrUnavailable = errors.New("remote corpus unavailable")

// HTTPReader fetches the corpus from a recipe service. Calls go through a
// circuit breaker; while it is open the last good snapshot is served.
type HTTPReader struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker[[]model.Recipe]
	log     *zap.Logger

	mu       sync.RWMutex
	snapshot []model.Recipe
}

// HTTPOption configures an HTTPReader
type HTTPOption func(*gobreaker.Settings)

// WithFailureThreshold trips the breaker after n consecutive failures
func WithFailureThreshold(n uint32) HTTPOption {
	return func(s *gobreaker.Settings) {
		s.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open
func WithOpenTimeout(d time.Duration) HTTPOption {
	return func(s *gobreaker.Settings) { s.Timeout = d }
}

// NewHTTPReader creates a reader for GET {baseURL}/recipes
func NewHTTPReader(baseURL string, timeout time.Duration, log *zap.Logger, opts ...HTTPOption) *HTTPReader {
	r := &HTTPReader{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		log: log,
	}

	settings := gobreaker.Settings{
		Name:        "corpus-http",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("corpus circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	for _, opt := range opts {
		opt(&settings)
	}
	r.breaker = gobreaker.NewCircuitBreaker[[]model.Recipe](settings)
	return r
}

// Recipes implements Reader
func (r *HTTPReader) Recipes(ctx context.Context) ([]model.Recipe, error) {
	recipes, err := r.breaker.Execute(func() ([]model.Recipe, error) {
		return r.fetch(ctx)
	})
	if err == nil {
		r.mu.Lock()
		r.snapshot = recipes
		r.mu.Unlock()
		return recipes, nil
	}

	r.mu.RLock()
	stale := r.snapshot
	r.mu.RUnlock()
	if stale != nil {
		r.log.Warn("serving stale corpus snapshot", zap.Error(err), zap.Int("recipes", len(stale)))
		return stale, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *HTTPReader) fetch(ctx context.Context) ([]model.Recipe, error) {
	var recipes []model.Recipe
	resp, err := r.client.R().
		SetContext(ctx).
		SetResult(&recipes).
		Get("/recipes")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	for i, recipe := range recipes {
		if err := validateRecipe(recipe); err != nil {
			return nil, fmt.Errorf("recipe %d: %w", i, err)
		}
	}
	return recipes, nil
}
