package filter

import (
	"strings"

	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// Keyword families, English and French
var (
	MeatKeywords = []string{
		"chicken", "poulet", "beef", "boeuf", "pork", "porc", "lamb", "agneau",
		"meat", "viande", "bacon", "ham", "jambon", "sausage", "saucisse",
		"turkey", "dinde", "duck", "canard", "veal", "veau", "rabbit", "lapin",
	}
	FishKeywords = []string{
		"fish", "poisson", "salmon", "saumon", "tuna", "thon", "sardine",
		"shrimp", "crevette", "crab", "crabe", "lobster", "homard", "mussel",
		"moule", "oyster", "huître", "seafood", "fruits de mer",
	}
	DairyKeywords = []string{
		"milk", "lait", "cheese", "fromage", "butter", "beurre", "cream",
		"crème", "yogurt", "yaourt", "whey",
	}
	EggKeywords = []string{"egg", "eggs", "œuf", "œufs", "egg white", "egg yolk"}
)

// excluded returns the keyword families a diet rules out
func excluded(d model.Diet) [][]string {
	switch d {
	case model.DietVegan:
		return [][]string{MeatKeywords, FishKeywords, DairyKeywords, EggKeywords}
	case model.DietVegetarian:
		return [][]string{MeatKeywords, FishKeywords}
	default:
		return nil
	}
}

// Complies reports whether a recipe's ingredients respect the diet. Normal,
// healthy, keto and paleo diets accept everything.
func Complies(ingredients []string, d model.Diet) bool {
	families := excluded(d)
	if len(families) == 0 {
		return true
	}
	text := strings.Join(ingredient.NormalizeAll(ingredients), " ")
	for _, words := range families {
		for _, w := range words {
			if strings.Contains(text, w) {
				return false
			}
		}
	}
	return true
}
