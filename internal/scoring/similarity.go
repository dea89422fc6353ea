// Package scoring ranks candidate recipes against a request.
package scoring

import (
	"math"
	"strings"

	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
)

// partialWeight is the weight of a containment match relative to an exact one
const partialWeight = 0.5

// Similarity is an enhanced Jaccard index between two ingredient lists.
//
// The exact part is |A∩B| / |A∪B| over the normalized sets. Every pair where
// one ingredient contains the other, and neither side is an exact match, adds
// partialWeight / |A∪B|. The result is capped at 1 and is 0 for two empty
// lists.
func Similarity(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	union := make(map[string]struct{}, len(setA)+len(setB))
	exact := make(map[string]struct{})
	for k := range setA {
		union[k] = struct{}{}
		if _, ok := setB[k]; ok {
			exact[k] = struct{}{}
		}
	}
	for k := range setB {
		union[k] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}

	nb := ingredient.NormalizeAll(b)
	partial := 0
	for _, x := range ingredient.NormalizeAll(a) {
		if x == "" {
			continue
		}
		for _, y := range nb {
			if y == "" {
				continue
			}
			if !strings.Contains(x, y) && !strings.Contains(y, x) {
				continue
			}
			_, xExact := exact[x]
			_, yExact := exact[y]
			if !xExact && !yExact {
				partial++
			}
		}
	}

	n := float64(len(union))
	return math.Min(1, float64(len(exact))/n+partialWeight*float64(partial)/n)
}

func toSet(list []string) map[string]struct{} {
	set := make(map[string]struct{}, len(list))
	for _, s := range list {
		if n := ingredient.Normalize(s); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
