// Package corpus reads the recipe corpus from the database, the bundled
// templates or a remote recipe service.
package corpus

import (
	"context"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// Reader returns the recipe corpus. Callers must treat the returned recipes
// as read-only.
type Reader interface {
	Recipes(ctx context.Context) ([]model.Recipe, error)
}

// InteractionReader returns logged recipe selections
type InteractionReader interface {
	Interactions(ctx context.Context) ([]model.UserInteraction, error)
}
