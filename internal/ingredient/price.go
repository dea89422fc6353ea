package ingredient

import "strings"

// DefaultPrice is charged for ingredients the table does not know, in TND.
const DefaultPrice = 6.00

// PriceEntry is a single known ingredient price
type PriceEntry struct {
	Key   string
	Price float64
}

// PriceTable is an ordered price lookup. Order decides which key wins when
// several keys contain (or are contained in) the queried ingredient.
type PriceTable []PriceEntry

// DefaultPrices is the built-in table, in TND.
var DefaultPrices = PriceTable{
	{"spaghetti", 4.5}, {"pasta", 4.5}, {"bacon", 9}, {"eggs", 7.5},
	{"parmesan", 12}, {"chicken", 15}, {"lettuce", 4.5}, {"croutons", 6},
	{"mushrooms", 9}, {"rice", 6}, {"arborio rice", 6}, {"chocolate", 10.5},
	{"butter", 7.5}, {"flour", 3}, {"sugar", 4.5}, {"mascarpone", 12},
	{"coffee", 6}, {"couscous", 6}, {"lamb meat", 24}, {"meat", 24},
	{"vegetables", 9}, {"zucchini", 6}, {"carrots", 4.5}, {"chickpeas", 6},
	{"harissa", 9}, {"black pepper", 3}, {"onion", 3}, {"white wine", 15},
	{"broth", 6}, {"ladyfingers", 9}, {"cocoa", 6}, {"baking powder", 3},
	{"apples", 6}, {"bananas", 4.5}, {"strawberries", 9}, {"oranges", 6},
	{"honey", 12}, {"mint", 3}, {"caesar dressing", 9}, {"tomatoes", 4.5},
	{"tomato", 4.5}, {"garlic", 3}, {"olive oil", 8}, {"basil", 3},
	{"mozzarella", 10}, {"potatoes", 3}, {"potato", 3}, {"bell peppers", 5},
	{"fish", 18}, {"shrimp", 25}, {"beef", 22}, {"pork", 20},
}

// Lookup returns the price of a single ingredient: exact key first, then the
// first key that contains it or that it contains, else DefaultPrice.
func (t PriceTable) Lookup(name string) float64 {
	n := Normalize(name)
	for _, e := range t {
		if e.Key == n {
			return e.Price
		}
	}
	if n == "" {
		return DefaultPrice
	}
	for _, e := range t {
		if strings.Contains(n, e.Key) || strings.Contains(e.Key, n) {
			return e.Price
		}
	}
	return DefaultPrice
}

// Estimate sums the price of every listed ingredient
func (t PriceTable) Estimate(list []string) float64 {
	total := 0.0
	for _, ing := range list {
		total += t.Lookup(ing)
	}
	return total
}

// EstimatePrice prices a shopping list with DefaultPrices
func EstimatePrice(list []string) float64 {
	return DefaultPrices.Estimate(list)
}
