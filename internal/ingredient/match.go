// Package ingredient canonicalizes and fuzzily compares ingredient strings.
package ingredient

import "strings"

const (
	// minContainLen is the shortest string that may take part in a containment match.
	minContainLen = 4
	// minContainRatio is the shorter/longer length ratio a containment match needs.
	minContainRatio = 0.7
	// minStemLen is the shortest base accepted after dropping a plural "s".
	minStemLen = 3
)

// Normalize lowercases and trims an ingredient
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeAll normalizes every entry, keeping order
func NormalizeAll(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = Normalize(s)
	}
	return out
}

// Match reports whether two ingredient strings name the same thing.
//
// Strings match when they are equal after normalization, when they are equal
// once a single trailing "s" is removed from each, or when one contains the
// other, both have at least four characters and the shorter covers at least
// 70% of the longer. The length gates keep "to" from matching "tomato".
func Match(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	if a == b {
		return true
	}

	sa, sb := strings.TrimSuffix(a, "s"), strings.TrimSuffix(b, "s")
	if sa == sb && len(sa) >= minStemLen {
		return true
	}

	if len(a) < minContainLen || len(b) < minContainLen {
		return false
	}
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if !strings.Contains(longer, shorter) {
		return false
	}
	return float64(len(shorter)) >= minContainRatio*float64(len(longer))
}

// MatchesAny reports whether item matches at least one entry of list
func MatchesAny(item string, list []string) bool {
	for _, candidate := range list {
		if Match(item, candidate) {
			return true
		}
	}
	return false
}

// HasAll reports whether every required ingredient is matched by something in
// available. An empty requirement list is trivially satisfied.
func HasAll(required, available []string) bool {
	for _, ing := range required {
		if !MatchesAny(ing, available) {
			return false
		}
	}
	return true
}

// Missing returns the normalized recipe ingredients that nothing in available
// matches. Order and duplicates follow the recipe.
func Missing(recipe, available []string) []string {
	missing := []string{}
	for _, ing := range recipe {
		if !MatchesAny(ing, available) {
			missing = append(missing, Normalize(ing))
		}
	}
	return missing
}
