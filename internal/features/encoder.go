package features

import (
	"math"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// Vector is a dense feature vector
type Vector []float64

// Range is a closed numeric interval
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Normalize maps x into [0,1] relative to the range. A degenerate range maps
// everything to 0.5.
func (r Range) Normalize(x float64) float64 {
	if r.Max == r.Min {
		return 0.5
	}
	return (x - r.Min) / (r.Max - r.Min)
}

// Stats are the corpus bounds used for min-max normalization
type Stats struct {
	Calories Range `json:"calories"`
	Price    Range `json:"price"`
	PrepTime Range `json:"prep_time"`
	CookTime Range `json:"cook_time"`
}

// DefaultStats are used for an empty corpus
func DefaultStats() Stats {
	return Stats{
		Calories: Range{0, 1000},
		Price:    Range{0, 50},
		PrepTime: Range{0, 120},
		CookTime: Range{0, 180},
	}
}

// ComputeStats returns the min/max of the numeric recipe fields
func ComputeStats(recipes []model.Recipe) Stats {
	if len(recipes) == 0 {
		return DefaultStats()
	}
	s := Stats{
		Calories: Range{math.Inf(1), math.Inf(-1)},
		Price:    Range{math.Inf(1), math.Inf(-1)},
		PrepTime: Range{math.Inf(1), math.Inf(-1)},
		CookTime: Range{math.Inf(1), math.Inf(-1)},
	}
	for _, r := range recipes {
		s.Calories = widen(s.Calories, r.Calories)
		s.Price = widen(s.Price, r.EstimatedPrice)
		s.PrepTime = widen(s.PrepTime, float64(r.PrepTime))
		s.CookTime = widen(s.CookTime, float64(r.CookTime))
	}
	return s
}

func widen(r Range, x float64) Range {
	return Range{math.Min(r.Min, x), math.Max(r.Max, x)}
}

// numericFeatures is calories, price, prep time and cook time
const numericFeatures = 4

// Encoder turns recipes and requests into vectors. Stats may be nil, in
// which case recipes are scaled by fixed divisors.
type Encoder struct {
	vocab *Vocabulary
	stats *Stats
}

// NewEncoder creates an encoder for a vocabulary snapshot
func NewEncoder(vocab *Vocabulary, stats *Stats) *Encoder {
	return &Encoder{vocab: vocab, stats: stats}
}

// Vocabulary returns the snapshot the encoder is keyed to
func (e *Encoder) Vocabulary() *Vocabulary { return e.vocab }

// Dim is the length of a recipe vector:
// ingredients + type bit + cuisines + numeric features + healthy bit.
func (e *Encoder) Dim() int {
	return len(e.vocab.ingredients) + 1 + len(e.vocab.cuisines) + numericFeatures + 1
}

// RequestDim is Dim plus the allergen penalty block
func (e *Encoder) RequestDim() int {
	return e.Dim() + len(e.vocab.ingredients)
}

// EncodeRecipe encodes a recipe
func (e *Encoder) EncodeRecipe(r *model.Recipe) Vector {
	v := make(Vector, e.Dim())
	off := e.writeCategorical(v, r.Ingredients, r.Type, r.Cuisine)

	if e.stats != nil {
		v[off] = e.stats.Calories.Normalize(r.Calories)
		v[off+1] = e.stats.Price.Normalize(r.EstimatedPrice)
		v[off+2] = e.stats.PrepTime.Normalize(float64(r.PrepTime))
		v[off+3] = e.stats.CookTime.Normalize(float64(r.CookTime))
	} else {
		v[off] = r.Calories / 1000
		v[off+1] = r.EstimatedPrice / 50
		v[off+2] = float64(r.PrepTime) / 120
		v[off+3] = float64(r.CookTime) / 180
	}
	off += numericFeatures

	v[off] = boolFeature(r.Healthy)
	return v
}

// EncodeRequest encodes a request. The numeric block holds the normalized
// midpoint of each corpus range, and a trailing block carries -1 at the
// index of every allergen found in the vocabulary.
func (e *Encoder) EncodeRequest(req *model.Request) Vector {
	v := make(Vector, e.RequestDim())
	off := e.writeCategorical(v, req.Available, req.Type, req.Cuisine)

	stats := DefaultStats()
	if e.stats != nil {
		stats = *e.stats
	}
	for i, r := range []Range{stats.Calories, stats.Price, stats.PrepTime, stats.CookTime} {
		v[off+i] = r.Normalize((r.Min + r.Max) / 2)
	}
	off += numericFeatures

	v[off] = boolFeature(req.Healthy)
	off++

	for _, a := range req.Allergies {
		if i, ok := e.vocab.IngredientIndex(a); ok {
			v[off+i] = -1
		}
	}
	return v
}

// writeCategorical fills the ingredient, type and cuisine blocks and returns
// the offset of the numeric block
func (e *Encoder) writeCategorical(v Vector, ingredients []string, t model.RecipeType, cuisine string) int {
	for _, ing := range ingredients {
		if i, ok := e.vocab.IngredientIndex(ing); ok {
			v[i] = 1
		}
	}
	off := len(e.vocab.ingredients)

	if t == model.Savory {
		v[off] = 1
	}
	off++

	if i, ok := e.vocab.CuisineIndex(cuisine); ok {
		v[off+i] = 1
	}
	return off + len(e.vocab.cuisines)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
