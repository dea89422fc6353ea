// Package dataset builds labeled training examples from a recipe corpus.
package dataset

import (
	"errors"
	"math/rand"

	"github.com/pageza/alchemorsel-v2/recommender/internal/features"
	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// MinExamplesPerRecipe keeps every recipe class populated enough to train on
const MinExamplesPerRecipe = 40

// DefaultMinLogged is how many usable logged selections replace synthetic
// data
const DefaultMinLogged = 100

// ErrNoExamples is returned when nothing could be generated
var ErrNoExamples = errors.New("no training examples")

// Example is one labeled request vector. Label is the corpus index of the
// recipe the request should resolve to.
type Example struct {
	Features features.Vector
	Label    int
}

// Profile is a synthetic user used to vary generated requests
type Profile struct {
	Age      int
	Gender   string
	Activity string
	Diet     model.Diet
	Healthy  bool
}

// Profiles are the synthetic users
var Profiles = []Profile{
	{25, "female", model.ActivityActive, model.DietHealthy, true},
	{35, "male", model.ActivityModerate, model.DietNormal, false},
	{45, "female", model.ActivityLight, model.DietVegetarian, true},
	{28, "male", model.ActivityVeryActive, model.DietKeto, true},
	{50, "female", model.ActivitySedentary, model.DietNormal, false},
}

// Cuisines are the cuisine labels synthetic requests draw from
var Cuisines = []string{
	"Italian", "Tunisian", "French", "Asian", "Mediterranean",
	"Mexican", "Indian", "American", model.CuisineAny,
}

// Strategy controls how closely a synthetic request mirrors its recipe
type Strategy int

const (
	// Strong requests share the recipe's type, cuisine and health flag
	Strong Strategy = iota
	// Moderate requests share type and health flag, cuisine is random
	Moderate
	// Weak requests share only the type
	Weak
)

// StrategyWeights are the sampling weights of Strong, Moderate and Weak
type StrategyWeights [3]float64

// DefaultStrategyWeights favours strong correspondence
var DefaultStrategyWeights = StrategyWeights{0.5, 0.3, 0.2}

func (w StrategyWeights) pick(rng *rand.Rand) Strategy {
	total := w[0] + w[1] + w[2]
	if total <= 0 {
		return Strong
	}
	x := rng.Float64() * total
	for i, p := range w {
		if x < p {
			return Strategy(i)
		}
		x -= p
	}
	return Weak
}

// Generator produces training examples
type Generator struct {
	encoder           *features.Encoder
	rng               *rand.Rand
	examplesPerRecipe int
	weights           StrategyWeights
	minAvailable      float64
	maxAvailable      float64
	minLogged         int
}

// Option configures a Generator
type Option func(*Generator)

// WithExamplesPerRecipe sets the per-recipe example count. Values below
// MinExamplesPerRecipe are raised to it.
func WithExamplesPerRecipe(n int) Option {
	return func(g *Generator) {
		if n < MinExamplesPerRecipe {
			n = MinExamplesPerRecipe
		}
		g.examplesPerRecipe = n
	}
}

// WithMinLogged sets how many logged examples are needed before they are
// trained on instead of synthetic data
func WithMinLogged(n int) Option {
	return func(g *Generator) {
		if n < 1 {
			n = 1
		}
		g.minLogged = n
	}
}

// WithStrategyWeights overrides DefaultStrategyWeights
func WithStrategyWeights(w StrategyWeights) Option {
	return func(g *Generator) { g.weights = w }
}

// NewGenerator creates a generator encoding with enc and drawing from rng
func NewGenerator(enc *features.Encoder, rng *rand.Rand, opts ...Option) *Generator {
	g := &Generator{
		encoder:           enc,
		rng:               rng,
		examplesPerRecipe: MinExamplesPerRecipe,
		weights:           DefaultStrategyWeights,
		minAvailable:      0.3,
		maxAvailable:      0.8,
		minLogged:         DefaultMinLogged,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Synthetic generates examplesPerRecipe requests for every recipe
func (g *Generator) Synthetic(recipes []model.Recipe) []Example {
	out := make([]Example, 0, len(recipes)*g.examplesPerRecipe)
	for label := range recipes {
		r := &recipes[label]
		for i := 0; i < g.examplesPerRecipe; i++ {
			req := g.request(r, g.weights.pick(g.rng))
			out = append(out, Example{Features: g.encoder.EncodeRequest(&req), Label: label})
		}
	}
	return out
}

// FromInteractions turns logged selections into examples. Interactions that
// name a recipe outside the corpus are skipped.
func (g *Generator) FromInteractions(recipes []model.Recipe, interactions []model.UserInteraction) []Example {
	index := make(map[string]int, len(recipes))
	for i, r := range recipes {
		key := ingredient.Normalize(r.Name)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	out := make([]Example, 0, len(interactions))
	for _, in := range interactions {
		label, ok := index[ingredient.Normalize(in.RecipeName)]
		if !ok {
			continue
		}
		req := in.Request()
		out = append(out, Example{Features: g.encoder.EncodeRequest(&req), Label: label})
	}
	return out
}

// Generate trains on logged interactions once at least minLogged of them map
// onto the corpus and on synthetic data otherwise.
func (g *Generator) Generate(recipes []model.Recipe, interactions []model.UserInteraction) ([]Example, bool, error) {
	if len(interactions) >= g.minLogged {
		if ex := g.FromInteractions(recipes, interactions); len(ex) >= g.minLogged {
			return ex, false, nil
		}
	}
	ex := g.Synthetic(recipes)
	if len(ex) == 0 {
		return nil, true, ErrNoExamples
	}
	return ex, true, nil
}

func (g *Generator) request(r *model.Recipe, s Strategy) model.Request {
	profile := g.profileFor(r.Healthy, s)
	req := model.Request{
		Type:      r.Type,
		Available: g.sampleIngredients(r.Ingredients),
		Healthy:   profile.Healthy,
		Diet:      profile.Diet,
		Cuisine:   Cuisines[g.rng.Intn(len(Cuisines))],
	}
	if s == Strong {
		req.Cuisine = r.Cuisine
	}
	return req
}

// profileFor draws a profile; strong and moderate strategies only draw
// profiles whose health preference matches the recipe.
func (g *Generator) profileFor(healthy bool, s Strategy) Profile {
	if s == Weak {
		return Profiles[g.rng.Intn(len(Profiles))]
	}
	matching := make([]Profile, 0, len(Profiles))
	for _, p := range Profiles {
		if p.Healthy == healthy {
			matching = append(matching, p)
		}
	}
	if len(matching) == 0 {
		p := Profiles[g.rng.Intn(len(Profiles))]
		p.Healthy = healthy
		return p
	}
	return matching[g.rng.Intn(len(matching))]
}

// sampleIngredients keeps a random 30-80% of the list, at least one item
func (g *Generator) sampleIngredients(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	frac := g.minAvailable + g.rng.Float64()*(g.maxAvailable-g.minAvailable)
	n := int(float64(len(list)) * frac)
	if n < 1 {
		n = 1
	}
	perm := g.rng.Perm(len(list))[:n]
	out := make([]string, n)
	for i, idx := range perm {
		out[i] = list[idx]
	}
	return out
}
