package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// MaxSuggestAttempts bounds how many ranked candidates one suggestion slot
// may inspect before giving up on finding an unused recipe
const MaxSuggestAttempts = 5

// highEnergyCalories is the calorie level recommended to active users
const highEnergyCalories = 400

// suggestionSlots is the taste family of each suggestion, in order
var suggestionSlots = []model.RecipeType{model.Savory, model.Savory, model.Sweet}

// Suggestion is one personalised recipe
type Suggestion struct {
	Recipe         model.Recipe `json:"recipe"`
	MatchReason    string       `json:"match_reason"`
	Missing        []string     `json:"missing_ingredients"`
	EstimatedPrice float64      `json:"estimated_price"`
}

// Suggest proposes up to two savory recipes and one sweet recipe for a
// profile, never the same recipe twice. Slots that find no unused recipe are
// skipped.
func (r *Recommender) Suggest(ctx context.Context, profile *model.UserProfile) ([]Suggestion, error) {
	if profile == nil {
		return nil, ValidationError{Field: "profile", Message: "is required"}
	}
	if err := r.validate.Struct(profile); err != nil {
		return nil, fromValidator(err)
	}

	used := map[string]bool{}
	out := make([]Suggestion, 0, len(suggestionSlots))
	for _, t := range suggestionSlots {
		req := suggestionRequest(profile, t)
		ranked, _, err := r.rank(ctx, &req)
		if errors.Is(err, ErrNoCandidate) {
			continue
		}
		if err != nil {
			return nil, err
		}

		for attempt := 0; attempt < MaxSuggestAttempts && attempt < len(ranked); attempt++ {
			c := ranked[attempt]
			key := ingredient.Normalize(c.Recipe.Name)
			if used[key] {
				continue
			}
			used[key] = true
			out = append(out, Suggestion{
				Recipe:         c.Recipe,
				MatchReason:    MatchReason(profile, &c.Recipe),
				Missing:        c.Missing,
				EstimatedPrice: c.EstimatedPrice,
			})
			break
		}
	}
	r.log.Debug("suggested recipes", zap.String("user", profile.UserID), zap.Int("count", len(out)))
	return out, nil
}

// suggestionRequest asks for a full recipe of type t that respects the
// profile's allergies and diet. Shopping is assumed.
func suggestionRequest(p *model.UserProfile, t model.RecipeType) model.Request {
	return model.Request{
		Type:        t,
		CanPurchase: true,
		Allergies:   p.Allergies,
		Cuisine:     model.CuisineAny,
		Healthy:     prefersHealthy(p),
		Diet:        p.Diet,
	}
}

func prefersHealthy(p *model.UserProfile) bool {
	switch p.Diet {
	case model.DietHealthy, model.DietVegetarian, model.DietVegan:
		return true
	}
	return p.PrefersHealthy
}

// MatchReason explains in a short phrase why a recipe suits a profile
func MatchReason(p *model.UserProfile, r *model.Recipe) string {
	var reasons []string
	if (p.Diet == model.DietVegetarian || p.Diet == model.DietVegan) && r.Healthy {
		reasons = append(reasons, "Healthy option")
	}
	if p.Diet == model.DietHealthy && r.Healthy {
		reasons = append(reasons, "Matches your healthy preference")
	}
	if (p.ActivityLevel == model.ActivityActive || p.ActivityLevel == model.ActivityVeryActive) &&
		r.Calories > highEnergyCalories {
		reasons = append(reasons, "High energy for active lifestyle")
	}
	if len(reasons) == 0 {
		return "Personalized for you"
	}
	return strings.Join(reasons, " • ")
}

// Profile categories
const (
	ProfileHealthConscious = "health_conscious"
	ProfileFitnessFocused  = "fitness_focused"
	ProfileRestrictedDiet  = "restricted_diet"
	ProfileHealthAware     = "health_aware"
	ProfileBalancedEater   = "balanced_eater"
	ProfileFlexibleEater   = "flexible_eater"
)

// ProfilePrediction classifies a user's eating profile
type ProfilePrediction struct {
	Category        string   `json:"category"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations"`
}

var profileAdvice = map[string]struct {
	confidence float64
	advice     []string
}{
	ProfileHealthConscious: {0.9, []string{"Plant-based recipes", "Fresh vegetable dishes", "Legume and grain bowls"}},
	ProfileFitnessFocused:  {0.85, []string{"High-protein meals", "Low-carb recipes", "Whole-food dishes"}},
	ProfileRestrictedDiet:  {0.8, []string{"Allergen-free recipes", "Simple recipes with few ingredients"}},
	ProfileHealthAware:     {0.75, []string{"Light recipes", "Low-calorie options", "Balanced portions"}},
	ProfileBalancedEater:   {0.7, []string{"Healthy classics", "Mediterranean dishes", "Fresh salads"}},
	ProfileFlexibleEater:   {0.5, []string{"Popular recipes", "Varied cuisines"}},
}

// PredictUserProfile places a profile in one category. Rules are checked in
// order: plant-based diet, keto or paleo, more than two allergies, any
// health condition, healthy diet, otherwise flexible.
func (r *Recommender) PredictUserProfile(p *model.UserProfile) ProfilePrediction {
	category := ProfileFlexibleEater
	switch {
	case p == nil:
	case p.Diet == model.DietVegan || p.Diet == model.DietVegetarian:
		category = ProfileHealthConscious
	case p.Diet == model.DietKeto || p.Diet == model.DietPaleo:
		category = ProfileFitnessFocused
	case len(p.Allergies) > 2:
		category = ProfileRestrictedDiet
	case len(p.HealthConditions) > 0:
		category = ProfileHealthAware
	case p.Diet == model.DietHealthy:
		category = ProfileBalancedEater
	}
	a := profileAdvice[category]
	return ProfilePrediction{
		Category:        category,
		Confidence:      a.confidence,
		Recommendations: append([]string(nil), a.advice...),
	}
}
