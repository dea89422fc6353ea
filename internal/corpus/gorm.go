package corpus

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// GormReader reads the corpus and interaction log from the database
type GormReader struct {
	db *gorm.DB
}

// NewGormReader creates a GormReader
func NewGormReader(db *gorm.DB) *GormReader {
	return &GormReader{db: db}
}

// Recipes implements Reader. Order is by name so corpus indices are stable
// between runs.
func (r *GormReader) Recipes(ctx context.Context) ([]model.Recipe, error) {
	var recipes []model.Recipe
	if err := r.db.WithContext(ctx).Order("name").Order("id").Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	return recipes, nil
}

// Interactions implements InteractionReader
func (r *GormReader) Interactions(ctx context.Context) ([]model.UserInteraction, error) {
	var rows []model.UserInteraction
	if err := r.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	return rows, nil
}

// LogInteraction records a selection for future training runs
func (r *GormReader) LogInteraction(ctx context.Context, in *model.UserInteraction) error {
	return r.db.WithContext(ctx).Create(in).Error
}

// Nearest returns up to limit recipes whose ingredient embedding is closest
// to available. Rows stored without an embedding are backfilled first.
// Postgres orders with pgvector; other databases rank in memory.
func (r *GormReader) Nearest(ctx context.Context, available []string, limit int) ([]model.Recipe, error) {
	if _, err := r.Backfill(ctx); err != nil {
		return nil, err
	}
	query := Embed(available)
	db := r.db.WithContext(ctx)

	if db.Dialector.Name() == "postgres" {
		var recipes []model.Recipe
		err := db.Where("embedding IS NOT NULL").
			Clauses(clause.OrderBy{Expression: clause.Expr{SQL: "embedding <-> ?", Vars: []interface{}{query}}}).
			Limit(limit).
			Find(&recipes).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query nearest recipes: %w", err)
		}
		return recipes, nil
	}

	var recipes []model.Recipe
	if err := db.Where("embedding IS NOT NULL").Find(&recipes).Error; err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	sort.SliceStable(recipes, func(i, j int) bool {
		return distance(*recipes[i].Embedding, query) < distance(*recipes[j].Embedding, query)
	})
	if limit > 0 && len(recipes) > limit {
		recipes = recipes[:limit]
	}
	return recipes, nil
}

// Backfill computes the embedding of every recipe stored without one and
// returns how many rows it updated
func (r *GormReader) Backfill(ctx context.Context) (int, error) {
	var missing []model.Recipe
	db := r.db.WithContext(ctx)
	if err := db.Where("embedding IS NULL").Find(&missing).Error; err != nil {
		return 0, fmt.Errorf("failed to find recipes without embedding: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		for i := range missing {
			emb := Embed(missing[i].Ingredients)
			if err := tx.Model(&missing[i]).Update("embedding", emb).Error; err != nil {
				return fmt.Errorf("failed to embed %q: %w", missing[i].Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(missing), nil
}

// Seed inserts recipes whose names are not present yet, computing their
// embeddings. It returns the number inserted.
func (r *GormReader) Seed(ctx context.Context, recipes []model.Recipe) (int, error) {
	inserted := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, recipe := range recipes {
			var count int64
			if err := tx.Model(&model.Recipe{}).Where("LOWER(name) = LOWER(?)", recipe.Name).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}
			emb := Embed(recipe.Ingredients)
			recipe.Embedding = &emb
			if err := tx.Create(&recipe).Error; err != nil {
				return fmt.Errorf("failed to insert %q: %w", recipe.Name, err)
			}
			inserted++
		}
		return nil
	})
	return inserted, err
}
