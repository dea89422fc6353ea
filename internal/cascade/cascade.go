// Package cascade narrows a corpus to a non-empty candidate set by relaxing
// constraints one stage at a time.
package cascade

import (
	"errors"
	"fmt"

	"github.com/pageza/alchemorsel-v2/recommender/internal/filter"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// ErrNoCandidate is returned when no stage yields a recipe
var ErrNoCandidate = errors.New("no candidate recipe")

// Stage identifies a step of the cascade
type Stage int

const (
	Strict Stage = iota
	RelaxCuisine
	RelaxDiet
	AnyOfType
	Fail
)

func (s Stage) String() string {
	switch s {
	case Strict:
		return "strict"
	case RelaxCuisine:
		return "relax_cuisine"
	case RelaxDiet:
		return "relax_diet"
	case AnyOfType:
		return "any_of_type"
	default:
		return "fail"
	}
}

// Result is the outcome of a cascade run
type Result struct {
	Stage      Stage
	Candidates []model.Recipe
}

// Cascade evaluates ordered filter stages over a corpus
type Cascade struct {
	stages map[Stage][]filter.Filter
}

// New creates the default cascade:
//
//	Strict       type, cuisine, allergen, diet
//	RelaxCuisine type, allergen, diet
//	RelaxDiet    type, allergen          (only when purchase is allowed)
//	AnyOfType    type
func New() *Cascade {
	return &Cascade{stages: map[Stage][]filter.Filter{
		Strict:       {filter.Type{}, filter.Cuisine{}, filter.Allergen{}, filter.Diet{}},
		RelaxCuisine: {filter.Type{}, filter.Allergen{}, filter.Diet{}},
		RelaxDiet:    {filter.Type{}, filter.Allergen{}},
		AnyOfType:    {filter.Type{}},
	}}
}

// Filters returns the filters of a stage
func (c *Cascade) Filters(s Stage) []filter.Filter {
	return c.stages[s]
}

// next returns the stage to try after s. Both later stages drop the diet
// filter, so a caller who cannot buy anything stops after RelaxCuisine.
func next(s Stage, req *model.Request) Stage {
	switch s {
	case Strict:
		return RelaxCuisine
	case RelaxCuisine:
		if req.CanPurchase {
			return RelaxDiet
		}
		return Fail
	case RelaxDiet:
		return AnyOfType
	default:
		return Fail
	}
}

// Run walks the stages until one keeps at least one recipe.
//
// When purchase is disallowed the pantry subset filter is applied to the
// corpus before any stage and is never relaxed; if nothing survives it Run
// returns ErrNoCandidate. ErrNoCandidate is also returned when the corpus
// holds no recipe of the requested type.
func (c *Cascade) Run(corpus []model.Recipe, req *model.Request) (*Result, error) {
	pool := corpus
	if !req.CanPurchase {
		pool = filter.Apply(corpus, req, filter.PantrySubset{})
		if len(pool) == 0 {
			return &Result{Stage: Fail}, fmt.Errorf("%w: nothing can be cooked from the available ingredients", ErrNoCandidate)
		}
	}

	for stage := Strict; stage != Fail; stage = next(stage, req) {
		if got := filter.Apply(pool, req, c.stages[stage]...); len(got) > 0 {
			return &Result{Stage: stage, Candidates: got}, nil
		}
	}
	if !req.CanPurchase {
		return &Result{Stage: Fail}, fmt.Errorf("%w: no cookable %s recipe fits the constraints", ErrNoCandidate, req.Type)
	}
	return &Result{Stage: Fail}, fmt.Errorf("%w: no %s recipe in corpus", ErrNoCandidate, req.Type)
}
