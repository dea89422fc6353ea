package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-v2/recommender/internal/corpus"
	"github.com/pageza/alchemorsel-v2/recommender/internal/filter"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/service"
)

func TestSuggest(t *testing.T) {
	r := service.NewRecommender(corpus.TemplateReader{}, noModel())

	got, err := r.Suggest(context.Background(), &model.UserProfile{
		UserID:        "u1",
		Diet:          model.DietVegetarian,
		ActivityLevel: model.ActivityActive,
		Allergies:     []string{"eggs"},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, model.Savory, got[0].Recipe.Type)
	assert.Equal(t, model.Savory, got[1].Recipe.Type)
	assert.Equal(t, model.Sweet, got[2].Recipe.Type)

	seen := map[string]bool{}
	for _, s := range got {
		assert.False(t, seen[s.Recipe.Name], "duplicate %s", s.Recipe.Name)
		seen[s.Recipe.Name] = true
		assert.False(t, filter.ContainsAllergen(s.Recipe.Ingredients, []string{"eggs"}), s.Recipe.Name)
		assert.NotEmpty(t, s.MatchReason)
	}

	t.Run("corpus with a single savory recipe", func(t *testing.T) {
		small := staticReader{recipes: []model.Recipe{
			{Name: "Toast", Type: model.Savory, Ingredients: model.JSONBStringArray{"bread"}},
			{Name: "Fudge", Type: model.Sweet, Ingredients: model.JSONBStringArray{"sugar"}},
		}}
		r := service.NewRecommender(small, noModel())
		got, err := r.Suggest(context.Background(), &model.UserProfile{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Toast", got[0].Recipe.Name)
		assert.Equal(t, "Fudge", got[1].Recipe.Name)
	})

	t.Run("invalid profile", func(t *testing.T) {
		_, err := r.Suggest(context.Background(), &model.UserProfile{ActivityLevel: "couch"})
		var verr service.ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "activity_level", verr.Field)
	})
}

func TestMatchReason(t *testing.T) {
	healthy := &model.Recipe{Healthy: true, Calories: 450}
	plain := &model.Recipe{Calories: 200}

	cases := []struct {
		name    string
		profile model.UserProfile
		recipe  *model.Recipe
		want    string
	}{
		{"vegan healthy", model.UserProfile{Diet: model.DietVegan}, healthy, "Healthy option"},
		{"healthy diet", model.UserProfile{Diet: model.DietHealthy}, healthy, "Matches your healthy preference"},
		{"active", model.UserProfile{ActivityLevel: model.ActivityVeryActive}, healthy, "High energy for active lifestyle"},
		{"combined", model.UserProfile{Diet: model.DietVegetarian, ActivityLevel: model.ActivityActive}, healthy,
			"Healthy option • High energy for active lifestyle"},
		{"nothing specific", model.UserProfile{Diet: model.DietVegan}, plain, "Personalized for you"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, service.MatchReason(&tc.profile, tc.recipe))
		})
	}
}

func TestPredictUserProfile(t *testing.T) {
	r := service.NewRecommender(corpus.TemplateReader{}, noModel())

	cases := []struct {
		profile *model.UserProfile
		want    string
	}{
		{&model.UserProfile{Diet: model.DietVegan, Allergies: []string{"a", "b", "c"}}, service.ProfileHealthConscious},
		{&model.UserProfile{Diet: model.DietPaleo}, service.ProfileFitnessFocused},
		{&model.UserProfile{Allergies: []string{"nuts", "eggs", "milk"}}, service.ProfileRestrictedDiet},
		{&model.UserProfile{HealthConditions: []string{"diabetes"}}, service.ProfileHealthAware},
		{&model.UserProfile{Diet: model.DietHealthy}, service.ProfileBalancedEater},
		{&model.UserProfile{Diet: model.DietNormal}, service.ProfileFlexibleEater},
		{nil, service.ProfileFlexibleEater},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			got := r.PredictUserProfile(tc.profile)
			assert.Equal(t, tc.want, got.Category)
			assert.Greater(t, got.Confidence, 0.0)
			assert.NotEmpty(t, got.Recommendations)
		})
	}
}
