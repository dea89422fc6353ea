package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/config"
	"github.com/pageza/alchemorsel-v2/recommender/internal/corpus"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

func sqliteConfig(t *testing.T, source string) *config.Config {
	return &config.Config{
		Environment: config.Test,
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "engine.db"),
		},
		Corpus: config.CorpusConfig{Source: source},
		Model:  config.ModelConfig{Name: "recipe_recommender", Type: "neural_network", TopK: 10},
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("database corpus", func(t *testing.T) {
		a, err := New(ctx, sqliteConfig(t, "database"), zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { a.Close() })

		assert.IsType(t, &corpus.GormReader{}, a.Corpus)
		assert.Nil(t, a.Redis)
		assert.Contains(t, a.Checks(), "database")
		assert.NotContains(t, a.Checks(), "redis")
		assert.NoError(t, a.Checks()["database"](ctx))

		// an empty table falls back to the bundled templates
		got, err := a.Recommender.Generate(ctx, &model.Request{Type: model.Savory, Available: []string{"potato"}})
		require.NoError(t, err)
		assert.True(t, got.Fallback)
	})

	t.Run("template corpus", func(t *testing.T) {
		a, err := New(ctx, sqliteConfig(t, "templates"), zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { a.Close() })
		assert.IsType(t, corpus.TemplateReader{}, a.Corpus)
	})

	t.Run("unknown corpus", func(t *testing.T) {
		_, err := New(ctx, sqliteConfig(t, "ftp"), zap.NewNop())
		assert.ErrorContains(t, err, "ftp")
	})
}
