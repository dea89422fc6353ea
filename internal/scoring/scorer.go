package scoring

import (
	"math"
	"sort"
	"strings"

	"github.com/pageza/alchemorsel-v2/recommender/internal/filter"
	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// Weights are the tunable bonuses (additive) and penalties (multiplicative)
// of the heuristic scorer.
type Weights struct {
	Similarity float64 `mapstructure:"similarity" json:"similarity"`

	TypeBonus   float64 `mapstructure:"type_bonus" json:"type_bonus"`
	TypePenalty float64 `mapstructure:"type_penalty" json:"type_penalty"`

	CuisineBonus   float64 `mapstructure:"cuisine_bonus" json:"cuisine_bonus"`
	CuisinePenalty float64 `mapstructure:"cuisine_penalty" json:"cuisine_penalty"`

	HealthBonus   float64 `mapstructure:"health_bonus" json:"health_bonus"`
	HealthPenalty float64 `mapstructure:"health_penalty" json:"health_penalty"`

	AllergenPenalty float64 `mapstructure:"allergen_penalty" json:"allergen_penalty"`

	BudgetBonus   float64 `mapstructure:"budget_bonus" json:"budget_bonus"`
	BudgetPenalty float64 `mapstructure:"budget_penalty" json:"budget_penalty"`

	CompleteBonus float64 `mapstructure:"complete_bonus" json:"complete_bonus"`

	SimpleBonus      float64 `mapstructure:"simple_bonus" json:"simple_bonus"`
	ModerateBonus    float64 `mapstructure:"moderate_bonus" json:"moderate_bonus"`
	ComplexPenalty   float64 `mapstructure:"complex_penalty" json:"complex_penalty"`
	MainIngredient   float64 `mapstructure:"main_ingredient" json:"main_ingredient"`
	SimpleMaxItems   int     `mapstructure:"simple_max_items" json:"simple_max_items"`
	ModerateMaxItems int     `mapstructure:"moderate_max_items" json:"moderate_max_items"`
}

// DefaultWeights returns the empirically tuned defaults
func DefaultWeights() Weights {
	return Weights{
		Similarity:       0.5,
		TypeBonus:        0.2,
		TypePenalty:      0.1,
		CuisineBonus:     0.15,
		CuisinePenalty:   0.7,
		HealthBonus:      0.1,
		HealthPenalty:    0.9,
		AllergenPenalty:  0.5,
		BudgetBonus:      0.05,
		BudgetPenalty:    0.8,
		CompleteBonus:    0.05,
		SimpleBonus:      0.3,
		ModerateBonus:    0.15,
		ComplexPenalty:   0.7,
		MainIngredient:   0.2,
		SimpleMaxItems:   3,
		ModerateMaxItems: 5,
	}
}

// Scorer computes a score in [0,1] for a recipe against a request
type Scorer struct {
	weights Weights
	prices  ingredient.PriceTable
}

// NewScorer creates a scorer. A nil price table falls back to the defaults.
func NewScorer(w Weights, prices ingredient.PriceTable) *Scorer {
	if prices == nil {
		prices = ingredient.DefaultPrices
	}
	return &Scorer{weights: w, prices: prices}
}

// Score evaluates one recipe. It also returns the missing ingredients and
// their estimated price so callers do not recompute them.
func (s *Scorer) Score(r *model.Recipe, req *model.Request) model.ScoredCandidate {
	w := s.weights
	missing := ingredient.Missing(r.Ingredients, req.Available)
	price := s.prices.Estimate(missing)

	score := Similarity(req.Available, r.Ingredients) * w.Similarity

	if len(req.Available) == 1 && !req.CanPurchase {
		switch n := len(r.Ingredients); {
		case n <= w.SimpleMaxItems:
			score += w.SimpleBonus
		case n <= w.ModerateMaxItems:
			score += w.ModerateBonus
		default:
			score *= w.ComplexPenalty
		}
		if usesAny(r.Ingredients, req.Available) {
			score += w.MainIngredient
		}
	}

	if r.Type == req.Type {
		score += w.TypeBonus
	} else {
		score *= w.TypePenalty
	}

	if req.HasCuisine() {
		if strings.EqualFold(r.Cuisine, req.Cuisine) {
			score += w.CuisineBonus
		} else {
			score *= w.CuisinePenalty
		}
	}

	if r.Healthy == req.Healthy {
		score += w.HealthBonus
	} else {
		score *= w.HealthPenalty
	}

	if filter.ContainsAllergen(r.Ingredients, req.Allergies) {
		score *= w.AllergenPenalty
	}

	if req.HasBudget() {
		if price <= *req.Budget {
			score += w.BudgetBonus
		} else {
			score *= w.BudgetPenalty
		}
	}

	if len(missing) == 0 {
		score += w.CompleteBonus
	}

	return model.ScoredCandidate{
		Recipe:         *r,
		Score:          clamp(score),
		Missing:        missing,
		EstimatedPrice: price,
	}
}

// Rank scores every recipe and sorts by descending score. Ties keep corpus
// order.
func (s *Scorer) Rank(recipes []model.Recipe, req *model.Request) []model.ScoredCandidate {
	out := make([]model.ScoredCandidate, len(recipes))
	for i := range recipes {
		out[i] = s.Score(&recipes[i], req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func usesAny(recipe, available []string) bool {
	for _, ing := range recipe {
		if ingredient.MatchesAny(ing, available) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
