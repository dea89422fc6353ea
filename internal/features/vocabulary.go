// Package features encodes recipes and requests into fixed-length vectors
// keyed to an immutable vocabulary snapshot.
package features

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// ErrVocabularyMismatch is returned when a model is used with a vocabulary it
// was not trained on
var ErrVocabularyMismatch = errors.New("vocabulary version mismatch")

// Vocabulary maps ingredients and cuisines to vector positions. It is never
// modified after construction.
type Vocabulary struct {
	ingredients []string
	cuisines    []string
	ingIndex    map[string]int
	cuiIndex    map[string]int
	version     string
}

// BuildVocabulary collects the sorted, deduplicated, lowercase ingredient and
// cuisine sets of a corpus snapshot
func BuildVocabulary(recipes []model.Recipe) *Vocabulary {
	ings := map[string]struct{}{}
	cuis := map[string]struct{}{}
	for _, r := range recipes {
		for _, ing := range r.Ingredients {
			if n := ingredient.Normalize(ing); n != "" {
				ings[n] = struct{}{}
			}
		}
		if c := ingredient.Normalize(r.Cuisine); c != "" {
			cuis[c] = struct{}{}
		}
	}
	return newVocabulary(sortedKeys(ings), sortedKeys(cuis))
}

func newVocabulary(ingredients, cuisines []string) *Vocabulary {
	v := &Vocabulary{
		ingredients: ingredients,
		cuisines:    cuisines,
		ingIndex:    make(map[string]int, len(ingredients)),
		cuiIndex:    make(map[string]int, len(cuisines)),
	}
	for i, s := range ingredients {
		v.ingIndex[s] = i
	}
	for i, s := range cuisines {
		v.cuiIndex[s] = i
	}

	h := sha256.New()
	h.Write([]byte(strings.Join(ingredients, "\x00")))
	h.Write([]byte{0x1e})
	h.Write([]byte(strings.Join(cuisines, "\x00")))
	v.version = hex.EncodeToString(h.Sum(nil))[:16]
	return v
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Version is a content hash of the vocabulary
func (v *Vocabulary) Version() string { return v.version }

// Ingredients returns a copy of the ingredient list
func (v *Vocabulary) Ingredients() []string {
	return append([]string(nil), v.ingredients...)
}

// Cuisines returns a copy of the cuisine list
func (v *Vocabulary) Cuisines() []string {
	return append([]string(nil), v.cuisines...)
}

// IngredientIndex returns the position of an ingredient
func (v *Vocabulary) IngredientIndex(s string) (int, bool) {
	i, ok := v.ingIndex[ingredient.Normalize(s)]
	return i, ok
}

// CuisineIndex returns the position of a cuisine
func (v *Vocabulary) CuisineIndex(s string) (int, bool) {
	i, ok := v.cuiIndex[ingredient.Normalize(s)]
	return i, ok
}

// Check fails when version differs from this vocabulary
func (v *Vocabulary) Check(version string) error {
	if version != v.version {
		return fmt.Errorf("%w: model %q, corpus %q", ErrVocabularyMismatch, version, v.version)
	}
	return nil
}

type vocabularyJSON struct {
	Ingredients []string `json:"ingredients"`
	Cuisines    []string `json:"cuisines"`
	Version     string   `json:"version"`
}

// MarshalJSON implements json.Marshaler
func (v *Vocabulary) MarshalJSON() ([]byte, error) {
	return json.Marshal(vocabularyJSON{Ingredients: v.ingredients, Cuisines: v.cuisines, Version: v.version})
}

// UnmarshalJSON implements json.Unmarshaler. The stored version must agree
// with the recomputed content hash.
func (v *Vocabulary) UnmarshalJSON(data []byte) error {
	var raw vocabularyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = *newVocabulary(raw.Ingredients, raw.Cuisines)
	if raw.Version != "" && raw.Version != v.version {
		return fmt.Errorf("%w: stored %q, computed %q", ErrVocabularyMismatch, raw.Version, v.version)
	}
	return nil
}
