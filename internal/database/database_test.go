package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/database"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/testhelpers"
)

func TestOpenSQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "open.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	db, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	defer database.Close(db)

	assert.NoError(t, database.HealthCheck(context.Background(), db))
	require.NoError(t, database.RunMigrations(db, zap.NewNop()))
	for _, m := range database.Models() {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := database.Open(config.DatabaseConfig{Driver: "mysql"}, zap.NewNop())
	assert.Error(t, err)
}

func TestRecipeRoundTrip(t *testing.T) {
	db := testhelpers.SQLiteDB(t)

	recipe := model.Recipe{
		Name:        "Baked Potatoes",
		Type:        model.Savory,
		Cuisine:     "American",
		Ingredients: model.JSONBStringArray{"potato"},
		Steps:       model.JSONBStringArray{"Bake"},
		Healthy:     true,
	}
	require.NoError(t, db.Create(&recipe).Error)
	assert.NotEqual(t, uuid.Nil, recipe.ID)

	var got model.Recipe
	require.NoError(t, db.First(&got, "id = ?", recipe.ID).Error)
	assert.Equal(t, model.JSONBStringArray{"potato"}, got.Ingredients)
	assert.Equal(t, model.Savory, got.Type)
	assert.Nil(t, got.Embedding)
}

func TestPostgresMigrations(t *testing.T) {
	db := testhelpers.PostgresDB(t)

	// re-running is a no-op
	require.NoError(t, database.RunMigrations(db, zap.NewNop()))

	first := model.MLModel{Name: "m", Type: "neural_network", Version: "1", IsActive: true}
	require.NoError(t, db.Create(&first).Error)
	second := model.MLModel{Name: "m", Type: "neural_network", Version: "2", IsActive: true}
	assert.Error(t, db.Create(&second).Error, "only one active model per name")
}
