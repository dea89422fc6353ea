package corpus

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

//go:embed templates.yaml
var templatesYAML []byte

var (
	templatesOnce sync.Once
	templates     []model.Recipe
	templatesErr  error
)

// Templates returns the bundled recipe corpus
func Templates() ([]model.Recipe, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = ParseYAML(templatesYAML)
	})
	if templatesErr != nil {
		return nil, templatesErr
	}
	return append([]model.Recipe(nil), templates...), nil
}

// ParseYAML decodes a YAML list of recipes and checks each is usable
func ParseYAML(data []byte) ([]model.Recipe, error) {
	var recipes []model.Recipe
	if err := yaml.Unmarshal(data, &recipes); err != nil {
		return nil, fmt.Errorf("failed to parse recipe templates: %w", err)
	}
	for i, r := range recipes {
		if err := validateRecipe(r); err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
	}
	return recipes, nil
}

func validateRecipe(r model.Recipe) error {
	switch {
	case r.Name == "":
		return fmt.Errorf("recipe has no name")
	case r.Type != model.Sweet && r.Type != model.Savory:
		return fmt.Errorf("recipe %q has unknown type %q", r.Name, r.Type)
	case len(r.Ingredients) == 0:
		return fmt.Errorf("recipe %q has no ingredients", r.Name)
	}
	return nil
}

// TemplateReader serves the bundled templates
type TemplateReader struct{}

// Recipes implements Reader
func (TemplateReader) Recipes(context.Context) ([]model.Recipe, error) {
	return Templates()
}
