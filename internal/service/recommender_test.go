package service_test

import (
	"context"
	"encoding"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-v2/recommender/internal/corpus"
	"github.com/pageza/alchemorsel-v2/recommender/internal/filter"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/modelstore"
	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
	"github.com/pageza/alchemorsel-v2/recommender/internal/testhelpers"
)

// mockStore is a ModelStore driven by testify expectations
type mockStore struct {
	mock.Mock
}

func (m *mockStore) Put(ctx context.Context, b encoding.BinaryMarshaler, meta modelstore.Meta) (*model.MLModel, error) {
	args := m.Called(ctx, b, meta)
	row, _ := args.Get(0).(*model.MLModel)
	return row, args.Error(1)
}

func (m *mockStore) Get(ctx context.Context, name, version string) (*model.MLModel, error) {
	args := m.Called(ctx, name, version)
	row, _ := args.Get(0).(*model.MLModel)
	return row, args.Error(1)
}

func (m *mockStore) GetByID(ctx context.Context, id uuid.UUID) (*model.MLModel, error) {
	args := m.Called(ctx, id)
	row, _ := args.Get(0).(*model.MLModel)
	return row, args.Error(1)
}

func (m *mockStore) Payload(ctx context.Context, row *model.MLModel) ([]byte, error) {
	args := m.Called(ctx, row)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockStore) Activate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) List(ctx context.Context, name string) ([]model.MLModel, error) {
	args := m.Called(ctx, name)
	rows, _ := args.Get(0).([]model.MLModel)
	return rows, args.Error(1)
}

func (m *mockStore) SaveHistory(ctx context.Context, id uuid.UUID, epochs []model.TrainingHistory) error {
	return m.Called(ctx, id, epochs).Error(0)
}

func (m *mockStore) History(ctx context.Context, id uuid.UUID) ([]model.TrainingHistory, error) {
	args := m.Called(ctx, id)
	rows, _ := args.Get(0).([]model.TrainingHistory)
	return rows, args.Error(1)
}

// noModel is a store without any trained model
func noModel() *mockStore {
	store := &mockStore{}
	store.On("Get", mock.Anything, "recipe_recommender", modelstore.LatestVersion).
		Return(nil, modelstore.ErrModelNotFound)
	return store
}

// staticReader serves a fixed corpus
type staticReader struct {
	recipes []model.Recipe
	err     error
}

func (s staticReader) Recipes(context.Context) ([]model.Recipe, error) {
	return s.recipes, s.err
}

func budget(v float64) *float64 { return &v }

func TestGeneratePotatoScenario(t *testing.T) {
	r := service.NewRecommender(corpus.TemplateReader{}, noModel())

	got, err := r.Generate(context.Background(), &model.Request{
		Type:        model.Savory,
		Available:   []string{"potato"},
		CanPurchase: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "Baked Potatoes", got.Recipe.Name)
	assert.NotNil(t, got.Missing)
	assert.Empty(t, got.Missing)
	assert.Zero(t, got.EstimatedPrice)
	assert.Equal(t, service.SourceHeuristic, got.Source)
	assert.False(t, got.Fallback)
}

func TestGenerateAllergyScenario(t *testing.T) {
	r := service.NewRecommender(corpus.TemplateReader{}, noModel())

	got, err := r.Generate(context.Background(), &model.Request{
		Type:        model.Sweet,
		Available:   []string{"chocolate", "eggs", "sugar"},
		CanPurchase: true,
		Budget:      budget(5),
		Allergies:   []string{"eggs"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.Sweet, got.Recipe.Type)
	assert.False(t, filter.ContainsAllergen(got.Recipe.Ingredients, []string{"eggs"}),
		"%s contains eggs", got.Recipe.Name)
	assert.LessOrEqual(t, got.EstimatedPrice, 5.0)
}

func TestGenerateErrors(t *testing.T) {
	ctx := context.Background()
	r := service.NewRecommender(corpus.TemplateReader{}, noModel())

	t.Run("budget exceeded", func(t *testing.T) {
		_, err := r.Generate(ctx, &model.Request{
			Type:        model.Savory,
			Available:   []string{"saffron"},
			CanPurchase: true,
			Budget:      budget(1),
		})
		assert.ErrorIs(t, err, service.ErrBudgetExceeded)
	})

	t.Run("no candidate without purchasing", func(t *testing.T) {
		_, err := r.Generate(ctx, &model.Request{
			Type:      model.Savory,
			Available: []string{"saffron"},
		})
		assert.ErrorIs(t, err, service.ErrNoCandidate)
	})

	cases := map[string]*model.Request{
		"type":                  {Type: "bitter", Available: []string{"potato"}},
		"available_ingredients": {Type: model.Savory, Available: []string{"  "}},
		"budget":                {Type: model.Savory, CanPurchase: true, Budget: budget(-1)},
		"dietary_preference":    {Type: model.Savory, CanPurchase: true, Diet: "carnivore"},
	}
	for field, req := range cases {
		t.Run("invalid "+field, func(t *testing.T) {
			_, err := r.Generate(ctx, req)
			var verr service.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, field, verr.Field)
		})
	}

	t.Run("nil request", func(t *testing.T) {
		_, err := r.Generate(ctx, nil)
		var verr service.ValidationError
		assert.True(t, errors.As(err, &verr))
	})
}

func TestGenerateTemplateFallback(t *testing.T) {
	ctx := context.Background()
	potato := &model.Request{Type: model.Savory, Available: []string{"potato"}}

	t.Run("empty corpus", func(t *testing.T) {
		r := service.NewRecommender(staticReader{}, noModel())
		got, err := r.Generate(ctx, potato)
		require.NoError(t, err)
		assert.True(t, got.Fallback)
		assert.Equal(t, "Baked Potatoes", got.Recipe.Name)
	})

	t.Run("unreadable corpus", func(t *testing.T) {
		r := service.NewRecommender(staticReader{err: errors.New("db down")}, noModel())
		got, err := r.Generate(ctx, potato)
		require.NoError(t, err)
		assert.True(t, got.Fallback)
	})

	t.Run("corpus without a cookable recipe", func(t *testing.T) {
		sweets := staticReader{recipes: []model.Recipe{
			{Name: "Fudge", Type: model.Sweet, Ingredients: model.JSONBStringArray{"sugar", "butter"}},
		}}
		r := service.NewRecommender(sweets, noModel())
		got, err := r.Generate(ctx, potato)
		require.NoError(t, err)
		assert.True(t, got.Fallback)
		assert.Empty(t, got.Missing)
	})

	t.Run("corpus hit is not a fallback", func(t *testing.T) {
		own := staticReader{recipes: []model.Recipe{
			{Name: "Potato Soup", Type: model.Savory, Ingredients: model.JSONBStringArray{"potato"}},
		}}
		r := service.NewRecommender(own, noModel())
		got, err := r.Generate(ctx, potato)
		require.NoError(t, err)
		assert.False(t, got.Fallback)
		assert.Equal(t, "Potato Soup", got.Recipe.Name)
	})
}

func TestGenerateRecoversFromStoreErrors(t *testing.T) {
	store := &mockStore{}
	store.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))
	r := service.NewRecommender(corpus.TemplateReader{}, store)

	got, err := r.Generate(context.Background(), &model.Request{
		Type:        model.Savory,
		Available:   []string{"potato"},
		CanPurchase: true,
	})
	require.NoError(t, err)
	assert.Equal(t, service.SourceHeuristic, got.Source)
	store.AssertExpectations(t)
}

func TestSimilar(t *testing.T) {
	ctx := context.Background()

	t.Run("in memory", func(t *testing.T) {
		r := service.NewRecommender(corpus.TemplateReader{}, noModel())
		got, err := r.Similar(ctx, []string{"potato"}, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "Baked Potatoes", got[0].Name)
	})

	t.Run("embedding search", func(t *testing.T) {
		reader := corpus.NewGormReader(testhelpers.SQLiteDB(t))
		templates, err := corpus.Templates()
		require.NoError(t, err)
		_, err = reader.Seed(ctx, templates)
		require.NoError(t, err)

		r := service.NewRecommender(reader, noModel())
		got, err := r.Similar(ctx, []string{"potato"}, 0)
		require.NoError(t, err)
		assert.Len(t, got, 10)
		assert.Equal(t, "Baked Potatoes", got[0].Name)
	})

	t.Run("requires ingredients", func(t *testing.T) {
		r := service.NewRecommender(corpus.TemplateReader{}, noModel())
		_, err := r.Similar(ctx, nil, 3)
		var verr service.ValidationError
		assert.True(t, errors.As(err, &verr))
	})
}

func TestRecordSelection(t *testing.T) {
	ctx := context.Background()
	reader := corpus.NewGormReader(testhelpers.SQLiteDB(t))
	r := service.NewRecommender(reader, noModel())

	req := &model.Request{Type: model.Savory, Available: []string{" Potato "}, CanPurchase: true}
	require.NoError(t, r.RecordSelection(ctx, "user-1", req, "Baked Potatoes"))

	rows, err := reader.Interactions(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "user-1", rows[0].UserID)
	assert.Equal(t, model.JSONBStringArray{"potato"}, rows[0].Available)

	err = r.RecordSelection(ctx, "user-1", req, " ")
	var verr service.ValidationError
	assert.True(t, errors.As(err, &verr))

	t.Run("interaction store behind a template corpus", func(t *testing.T) {
		store := corpus.NewGormReader(testhelpers.SQLiteDB(t))
		r := service.NewRecommender(corpus.TemplateReader{}, noModel(), service.WithInteractions(store))
		require.NoError(t, r.RecordSelection(ctx, "user-2", req, "Baked Potatoes"))

		rows, err := store.Interactions(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "user-2", rows[0].UserID)
		assert.Equal(t, "Baked Potatoes", rows[0].RecipeName)
	})

	t.Run("reader without a log", func(t *testing.T) {
		r := service.NewRecommender(corpus.TemplateReader{}, noModel())
		assert.NoError(t, r.RecordSelection(ctx, "user-1", req, "Baked Potatoes"))
	})
}
