// Package filter holds the recipe predicates used to narrow a corpus before
// scoring.
package filter

import (
	"strings"

	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// Filter decides whether a recipe stays in the candidate set.
type Filter interface {
	// Name identifies the filter in logs and metrics
	Name() string

	// Keep returns true when the recipe satisfies the filter
	Keep(r *model.Recipe, req *model.Request) bool
}

// Apply returns the recipes every filter keeps, in corpus order
func Apply(recipes []model.Recipe, req *model.Request, filters ...Filter) []model.Recipe {
	out := make([]model.Recipe, 0, len(recipes))
	for i := range recipes {
		keep := true
		for _, f := range filters {
			if !f.Keep(&recipes[i], req) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, recipes[i])
		}
	}
	return out
}

// Type keeps recipes of the requested type
type Type struct{}

func (Type) Name() string { return "type" }

func (Type) Keep(r *model.Recipe, req *model.Request) bool {
	return r.Type == req.Type
}

// Cuisine keeps recipes of the requested cuisine. It keeps everything when
// no concrete cuisine was asked for.
type Cuisine struct{}

func (Cuisine) Name() string { return "cuisine" }

func (Cuisine) Keep(r *model.Recipe, req *model.Request) bool {
	if !req.HasCuisine() {
		return true
	}
	return strings.EqualFold(r.Cuisine, req.Cuisine)
}

// Allergen drops recipes whose ingredient text mentions an allergy
type Allergen struct{}

func (Allergen) Name() string { return "allergen" }

func (Allergen) Keep(r *model.Recipe, req *model.Request) bool {
	return !ContainsAllergen(r.Ingredients, req.Allergies)
}

// Diet drops recipes that break the requested dietary preference
type Diet struct{}

func (Diet) Name() string { return "diet" }

func (Diet) Keep(r *model.Recipe, req *model.Request) bool {
	return Complies(r.Ingredients, req.Diet)
}

// PantrySubset keeps recipes that can be cooked from the available
// ingredients alone.
type PantrySubset struct{}

func (PantrySubset) Name() string { return "pantry_subset" }

func (PantrySubset) Keep(r *model.Recipe, req *model.Request) bool {
	return ingredient.HasAll(r.Ingredients, req.Available)
}

// ContainsAllergen reports whether any allergy appears in the joined,
// normalized ingredient text or matches a single ingredient under
// ingredient.Match ("eggs" finds "egg"). Multi-word allergies also match with
// their first space removed ("peanut butter" finds "peanutbutter").
func ContainsAllergen(ingredients []string, allergies []string) bool {
	if len(allergies) == 0 {
		return false
	}
	normalized := ingredient.NormalizeAll(ingredients)
	text := strings.Join(normalized, " ")
	for _, a := range allergies {
		a = ingredient.Normalize(a)
		if a == "" {
			continue
		}
		if strings.Contains(text, a) || strings.Contains(text, strings.Replace(a, " ", "", 1)) {
			return true
		}
		if ingredient.MatchesAny(a, normalized) {
			return true
		}
	}
	return false
}
