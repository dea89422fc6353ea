package model

// Diet is a dietary preference
type Diet string

const (
	DietNormal     Diet = "normal"
	DietHealthy    Diet = "healthy"
	DietVegetarian Diet = "vegetarian"
	DietVegan      Diet = "vegan"
	DietKeto       Diet = "keto"
	DietPaleo      Diet = "paleo"
)

// CuisineAny means the caller has no cuisine preference.
const CuisineAny = "Other"

// Request describes what the user has and wants.
type Request struct {
	Type        RecipeType `json:"type" validate:"required,oneof=sweet savory"`
	Available   []string   `json:"available_ingredients" validate:"dive,required"`
	CanPurchase bool       `json:"can_purchase"`
	Budget      *float64   `json:"budget,omitempty" validate:"omitempty,gte=0"`
	Allergies   []string   `json:"allergies"`
	Cuisine     string     `json:"cuisine,omitempty"`
	Healthy     bool       `json:"healthy"`
	Diet        Diet       `json:"dietary_preference,omitempty" validate:"omitempty,oneof=normal healthy vegetarian vegan keto paleo"`
}

// HasCuisine reports whether a concrete cuisine was requested
func (r Request) HasCuisine() bool {
	return r.Cuisine != "" && r.Cuisine != CuisineAny
}

// HasBudget reports whether a purchase budget applies
func (r Request) HasBudget() bool {
	return r.CanPurchase && r.Budget != nil && *r.Budget > 0
}
