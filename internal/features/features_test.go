package features

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

func sampleCorpus() []model.Recipe {
	return []model.Recipe{
		{Name: "Carbonara", Type: model.Savory, Cuisine: "Italian", Ingredients: []string{"Spaghetti", "bacon", "eggs"},
			Calories: 520, EstimatedPrice: 26, PrepTime: 10, CookTime: 15},
		{Name: "Mousse", Type: model.Sweet, Cuisine: "French", Ingredients: []string{"chocolate", "eggs", " sugar "},
			Calories: 300, EstimatedPrice: 20, PrepTime: 20, CookTime: 0, Healthy: false},
		{Name: "Salad", Type: model.Savory, Cuisine: "italian", Ingredients: []string{"tomato"},
			Calories: 100, EstimatedPrice: 6, PrepTime: 5, CookTime: 0, Healthy: true},
	}
}

func TestBuildVocabulary(t *testing.T) {
	v := BuildVocabulary(sampleCorpus())
	assert.Equal(t, []string{"bacon", "chocolate", "eggs", "spaghetti", "sugar", "tomato"}, v.Ingredients())
	assert.Equal(t, []string{"french", "italian"}, v.Cuisines())

	i, ok := v.IngredientIndex(" EGGS")
	require.True(t, ok)
	assert.Equal(t, 2, i)

	t.Run("version is content derived", func(t *testing.T) {
		shuffled := sampleCorpus()
		shuffled[0], shuffled[2] = shuffled[2], shuffled[0]
		assert.Equal(t, v.Version(), BuildVocabulary(shuffled).Version())

		other := append(sampleCorpus(), model.Recipe{Ingredients: []string{"salt"}})
		assert.NotEqual(t, v.Version(), BuildVocabulary(other).Version())
	})

	t.Run("check", func(t *testing.T) {
		assert.NoError(t, v.Check(v.Version()))
		assert.ErrorIs(t, v.Check("deadbeef"), ErrVocabularyMismatch)
	})

	t.Run("accessors return copies", func(t *testing.T) {
		ings := v.Ingredients()
		ings[0] = "mutated"
		assert.Equal(t, "bacon", v.Ingredients()[0])
	})
}

func TestVocabularyJSON(t *testing.T) {
	v := BuildVocabulary(sampleCorpus())
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var back Vocabulary
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, v.Version(), back.Version())
	assert.Equal(t, v.Ingredients(), back.Ingredients())

	tampered := []byte(`{"ingredients":["a"],"cuisines":[],"version":"0000"}`)
	assert.ErrorIs(t, json.Unmarshal(tampered, &back), ErrVocabularyMismatch)
}

func TestStats(t *testing.T) {
	s := ComputeStats(sampleCorpus())
	assert.Equal(t, Range{100, 520}, s.Calories)
	assert.Equal(t, Range{6, 26}, s.Price)
	assert.Equal(t, Range{5, 20}, s.PrepTime)
	assert.Equal(t, Range{0, 15}, s.CookTime)

	assert.Equal(t, DefaultStats(), ComputeStats(nil))
	assert.Equal(t, 0.5, Range{3, 3}.Normalize(10))
	assert.Equal(t, 0.25, Range{0, 4}.Normalize(1))
}

func TestEncodeRecipe(t *testing.T) {
	corpus := sampleCorpus()
	v := BuildVocabulary(corpus)
	stats := ComputeStats(corpus)
	enc := NewEncoder(v, &stats)

	// 6 ingredients + type + 2 cuisines + 4 numeric + healthy
	require.Equal(t, 14, enc.Dim())

	got := enc.EncodeRecipe(&corpus[0])
	assert.Equal(t, Vector{
		1, 0, 1, 1, 0, 0, // bacon chocolate eggs spaghetti sugar tomato
		1,    // savory
		0, 1, // french italian
		1, 1, 1.0 / 3, 1, // calories price prep cook
		0, // healthy
	}, got)

	t.Run("without stats uses divisors", func(t *testing.T) {
		plain := NewEncoder(v, nil)
		got := plain.EncodeRecipe(&corpus[0])
		assert.InDelta(t, 0.52, got[9], 1e-9)
		assert.InDelta(t, 26.0/50, got[10], 1e-9)
		assert.InDelta(t, 10.0/120, got[11], 1e-9)
		assert.InDelta(t, 15.0/180, got[12], 1e-9)
	})
}

func TestEncodeRequest(t *testing.T) {
	corpus := sampleCorpus()
	v := BuildVocabulary(corpus)
	stats := ComputeStats(corpus)
	enc := NewEncoder(v, &stats)

	req := &model.Request{
		Type:      model.Sweet,
		Available: []string{"chocolate", "saffron"},
		Cuisine:   "French",
		Healthy:   true,
		Allergies: []string{"eggs", "peanuts"},
	}
	got := enc.EncodeRequest(req)
	require.Len(t, got, enc.RequestDim())
	require.Equal(t, 20, enc.RequestDim())

	assert.Equal(t, Vector{0, 1, 0, 0, 0, 0}, got[:6])
	assert.Equal(t, 0.0, got[6], "sweet")
	assert.Equal(t, Vector{1, 0}, got[7:9])
	assert.Equal(t, Vector{0.5, 0.5, 0.5, 0.5}, got[9:13])
	assert.Equal(t, 1.0, got[13])
	assert.Equal(t, Vector{0, 0, -1, 0, 0, 0}, got[14:])
}
