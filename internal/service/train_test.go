package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/corpus"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/modelstore"
	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
	"github.com/pageza/alchemorsel-v2/recommender/internal/testhelpers"
)

func smallTraining() config.TrainingConfig {
	return config.TrainingConfig{
		ExamplesPerRecipe: 40,
		MinRecipes:        10,
		Epochs:            3,
		BatchSize:         64,
		Patience:          0,
		WidthDivisor:      8,
		Parallel:          2,
		Seed:              7,
	}
}

func TestTrainThenGenerate(t *testing.T) {
	ctx := context.Background()
	store := modelstore.New(testhelpers.SQLiteDB(t))
	// every label is ranked so the savory candidates always meet a prediction
	r := service.NewRecommender(corpus.TemplateReader{}, store,
		service.WithTrainingConfig(smallTraining()),
		service.WithModelConfig(config.ModelConfig{Name: "recipe_recommender", Type: "neural_network", TopK: 41, CacheTTL: time.Minute}),
	)

	res, err := r.Train(ctx, service.TrainOptions{Hidden: []int{32}, LearningRate: 0.01})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Synthetic)
	assert.Equal(t, 41*40, res.Examples)
	assert.Equal(t, 3, res.Epochs)
	assert.Greater(t, res.Metrics.Samples, 0)

	active, err := store.Get(ctx, "recipe_recommender", modelstore.LatestVersion)
	require.NoError(t, err)
	assert.Equal(t, res.ModelID, active.ID)
	assert.Equal(t, 41*40, active.TrainingDataSize)

	history, err := r.History(ctx, res.ModelID)
	require.NoError(t, err)
	assert.Len(t, history, 3)

	models, err := r.Models(ctx, "")
	require.NoError(t, err)
	assert.Len(t, models, 1)

	t.Run("model ranks the candidates", func(t *testing.T) {
		got, err := r.Generate(ctx, &model.Request{
			Type:        model.Savory,
			Available:   []string{"potato", "olive oil"},
			CanPurchase: true,
		})
		require.NoError(t, err)
		assert.Equal(t, service.SourceModel, got.Source)
		assert.Equal(t, model.Savory, got.Recipe.Type)
	})

	t.Run("model never breaks the pantry rule", func(t *testing.T) {
		got, err := r.Generate(ctx, &model.Request{
			Type:      model.Savory,
			Available: []string{"potato"},
		})
		require.NoError(t, err)
		assert.Equal(t, "Baked Potatoes", got.Recipe.Name)
		assert.Empty(t, got.Missing)
		assert.Zero(t, got.EstimatedPrice)
	})

	t.Run("vocabulary mismatch falls back to the heuristic", func(t *testing.T) {
		other := staticReader{recipes: []model.Recipe{
			{Name: "Potato Soup", Type: model.Savory, Ingredients: model.JSONBStringArray{"potato", "leek"}},
		}}
		r2 := service.NewRecommender(other, store)
		got, err := r2.Generate(ctx, &model.Request{Type: model.Savory, Available: []string{"potato"}, CanPurchase: true})
		require.NoError(t, err)
		assert.Equal(t, service.SourceHeuristic, got.Source)
	})

	t.Run("retraining activates the new model", func(t *testing.T) {
		again, err := r.Train(ctx, service.TrainOptions{Epochs: 1, Hidden: []int{16}})
		require.NoError(t, err)
		assert.NotEqual(t, res.ModelID, again.ModelID)

		active, err := store.Get(ctx, "recipe_recommender", "")
		require.NoError(t, err)
		assert.Equal(t, again.ModelID, active.ID)
	})
}

func TestTrainModelSelection(t *testing.T) {
	ctx := context.Background()
	store := modelstore.New(testhelpers.SQLiteDB(t))
	r := service.NewRecommender(corpus.TemplateReader{}, store, service.WithTrainingConfig(smallTraining()))

	res, err := r.Train(ctx, service.TrainOptions{Epochs: 2, SelectArchitecture: true})
	require.NoError(t, err)
	assert.Contains(t, []string{"deep_wide", "deep_wider", "deep_tapered"}, res.Architecture)

	rows, err := store.List(ctx, "recipe_recommender")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "only the winning architecture is stored")
}

func TestTrainInsufficientData(t *testing.T) {
	store := &mockStore{}
	tiny := staticReader{recipes: []model.Recipe{
		{Name: "Toast", Type: model.Savory, Ingredients: model.JSONBStringArray{"bread"}},
		{Name: "Fudge", Type: model.Sweet, Ingredients: model.JSONBStringArray{"sugar"}},
	}}
	r := service.NewRecommender(tiny, store, service.WithTrainingConfig(smallTraining()))

	_, err := r.Train(context.Background(), service.TrainOptions{})
	assert.ErrorIs(t, err, service.ErrInsufficientData)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestTrainCorpusUnavailable(t *testing.T) {
	dbDown := errors.New("db down")
	store := &mockStore{}
	r := service.NewRecommender(staticReader{err: dbDown}, store, service.WithTrainingConfig(smallTraining()))

	res, err := r.Train(context.Background(), service.TrainOptions{Epochs: 1})
	assert.ErrorIs(t, err, dbDown)
	assert.Nil(t, res)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything)
}

func TestTrainEmptyCorpusUsesTemplates(t *testing.T) {
	ctx := context.Background()
	store := modelstore.New(testhelpers.SQLiteDB(t))
	r := service.NewRecommender(staticReader{}, store, service.WithTrainingConfig(smallTraining()))

	res, err := r.Train(ctx, service.TrainOptions{Epochs: 1, Hidden: []int{8}, ValidationSplit: 0.2})
	require.NoError(t, err)
	assert.Equal(t, 41*40, res.Examples)

	active, err := store.Get(ctx, "recipe_recommender", "")
	require.NoError(t, err)
	assert.Equal(t, res.ModelID, active.ID)
}

func TestTrainSerializationFailure(t *testing.T) {
	store := &mockStore{}
	store.On("Put", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: disk full", modelstore.ErrSerialization))
	r := service.NewRecommender(corpus.TemplateReader{}, store, service.WithTrainingConfig(smallTraining()))

	_, err := r.Train(context.Background(), service.TrainOptions{Epochs: 1, Hidden: []int{8}})
	assert.ErrorIs(t, err, service.ErrSerialization)
	store.AssertNotCalled(t, "Activate", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "SaveHistory", mock.Anything, mock.Anything, mock.Anything)
}

func TestTrainRejectsInvalidOptions(t *testing.T) {
	r := service.NewRecommender(corpus.TemplateReader{}, &mockStore{})
	_, err := r.Train(context.Background(), service.TrainOptions{Dropout: 1.5})
	var verr service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dropout", verr.Field)

	_, err = r.Train(context.Background(), service.TrainOptions{ValidationSplit: 0.45})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "validation_split", verr.Field)
}

// blockingReader holds the first training run inside the corpus read until
// its context ends
type blockingReader struct {
	once    sync.Once
	entered chan struct{}
}

func (b *blockingReader) Recipes(ctx context.Context) ([]model.Recipe, error) {
	b.once.Do(func() { close(b.entered) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTrainIsExclusive(t *testing.T) {
	reader := &blockingReader{entered: make(chan struct{})}
	r := service.NewRecommender(reader, &mockStore{}, service.WithTrainingConfig(smallTraining()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Train(ctx, service.TrainOptions{})
		done <- err
	}()
	<-reader.entered

	_, err := r.Train(context.Background(), service.TrainOptions{})
	assert.ErrorIs(t, err, service.ErrTrainingInProgress)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestActivateClearsLoadedModel(t *testing.T) {
	ctx := context.Background()
	store := modelstore.New(testhelpers.SQLiteDB(t))
	r := service.NewRecommender(corpus.TemplateReader{}, store, service.WithTrainingConfig(smallTraining()))

	first, err := r.Train(ctx, service.TrainOptions{Epochs: 1, Hidden: []int{16}})
	require.NoError(t, err)
	second, err := r.Train(ctx, service.TrainOptions{Epochs: 1, Hidden: []int{16}})
	require.NoError(t, err)

	require.NoError(t, r.Activate(ctx, first.ModelID))
	active, err := store.Get(ctx, "recipe_recommender", "")
	require.NoError(t, err)
	assert.Equal(t, first.ModelID, active.ID)
	assert.NotEqual(t, first.ModelID, second.ModelID)

	_, err = r.History(ctx, second.ModelID)
	assert.NoError(t, err)
}
