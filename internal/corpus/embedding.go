package corpus

import (
	"hash/fnv"
	"math"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
)

// EmbeddingDim matches the recipes.embedding column
const EmbeddingDim = 64

// Embed hashes normalized ingredient names into a unit length bag-of-words
// vector. Recipes sharing ingredients land close together.
func Embed(ingredients []string) pgvector.Vector {
	v := make([]float32, EmbeddingDim)
	for _, name := range ingredient.NormalizeAll(ingredients) {
		if name == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(name))
		v[h.Sum32()%EmbeddingDim]++
	}
	var norm float64
	for _, x := range v {
		norm += float64(x * x)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= inv
		}
	}
	return pgvector.NewVector(v)
}

// distance is the euclidean distance between two embeddings
func distance(a, b pgvector.Vector) float64 {
	x, y := a.Slice(), b.Slice()
	if len(x) != len(y) {
		return math.Inf(1)
	}
	var sum float64
	for i := range x {
		d := float64(x[i] - y[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
