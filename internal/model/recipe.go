package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// RecipeType is the taste family of a recipe
type RecipeType string

const (
	Sweet  RecipeType = "sweet"
	Savory RecipeType = "savory"
)

// JSONBStringArray is a custom type for handling string arrays in JSONB
type JSONBStringArray []string

// Value implements the driver.Valuer interface
func (a JSONBStringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface
func (a *JSONBStringArray) Scan(value interface{}) error {
	if value == nil {
		*a = JSONBStringArray{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Recipe is a corpus entry. It is read-only for the recommendation engine.
type Recipe struct {
	ID             uuid.UUID        `gorm:"type:uuid;primary_key" json:"id" yaml:"-"`
	CreatedAt      time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time        `json:"updated_at" yaml:"-"`
	DeletedAt      gorm.DeletedAt   `gorm:"index" json:"-" yaml:"-"`
	Name           string           `gorm:"size:255;not null" json:"name" yaml:"name"`
	Description    string           `gorm:"type:text" json:"description" yaml:"description"`
	Ingredients    JSONBStringArray `gorm:"type:jsonb;not null;default:'[]'" json:"ingredients" yaml:"ingredients"`
	Steps          JSONBStringArray `gorm:"type:jsonb;not null;default:'[]'" json:"steps" yaml:"steps"`
	PrepTime       int              `json:"prep_time" yaml:"prep_time"`
	CookTime       int              `json:"cook_time" yaml:"cook_time"`
	Servings       int              `json:"servings" yaml:"servings"`
	Calories       float64          `gorm:"type:float" json:"calories" yaml:"calories"`
	EstimatedPrice float64          `gorm:"type:float" json:"estimated_price" yaml:"estimated_price"`
	Cuisine        string           `gorm:"size:50;index" json:"cuisine" yaml:"cuisine"`
	Type           RecipeType       `gorm:"size:10;index;not null" json:"type" yaml:"type"`
	Healthy        bool             `json:"healthy" yaml:"healthy"`
	Tags           JSONBStringArray `gorm:"type:jsonb;default:'[]'" json:"tags,omitempty" yaml:"tags,omitempty"`
	Difficulty     string           `gorm:"size:20" json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Embedding      *pgvector.Vector `gorm:"type:vector(64)" json:"-" yaml:"-"`
}

// BeforeCreate assigns an id when the caller did not
func (r *Recipe) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ScoredCandidate carries everything derived for a recipe during one request.
type ScoredCandidate struct {
	Recipe         Recipe   `json:"recipe"`
	Score          float64  `json:"score"`
	Missing        []string `json:"missing_ingredients"`
	EstimatedPrice float64  `json:"estimated_price"`
}
