package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity levels
const (
	ActivitySedentary  = "sedentary"
	ActivityLight      = "light"
	ActivityModerate   = "moderate"
	ActivityActive     = "active"
	ActivityVeryActive = "very_active"
)

// UserProfile is the subset of a user's profile the engine needs
type UserProfile struct {
	UserID           string   `json:"user_id,omitempty"`
	Age              int      `json:"age" validate:"omitempty,gte=0,lte=130"`
	Gender           string   `json:"gender,omitempty"`
	ActivityLevel    string   `json:"activity_level,omitempty" validate:"omitempty,oneof=sedentary light moderate active very_active"`
	Diet             Diet     `json:"dietary_preference,omitempty" validate:"omitempty,oneof=normal healthy vegetarian vegan keto paleo"`
	Allergies        []string `json:"allergies,omitempty"`
	HealthConditions []string `json:"health_conditions,omitempty"`
	PrefersHealthy   bool     `json:"prefers_healthy"`
}

// UserInteraction is a logged recipe selection, used as a real training
// example when enough of them exist.
type UserInteraction struct {
	ID          uuid.UUID        `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt   time.Time        `json:"created_at"`
	UserID      string           `gorm:"size:64;index" json:"user_id"`
	RecipeName  string           `gorm:"size:255;index;not null" json:"recipe_name"`
	Available   JSONBStringArray `gorm:"type:jsonb;default:'[]'" json:"available_ingredients"`
	Allergies   JSONBStringArray `gorm:"type:jsonb;default:'[]'" json:"allergies"`
	Type        RecipeType       `gorm:"size:10" json:"type"`
	Cuisine     string           `gorm:"size:50" json:"cuisine"`
	Healthy     bool             `json:"healthy"`
	CanPurchase bool             `json:"can_purchase"`
}

// BeforeCreate assigns an id when the caller did not
func (i *UserInteraction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Request rebuilds the request the interaction answered
func (i UserInteraction) Request() Request {
	return Request{
		Type:        i.Type,
		Available:   i.Available,
		Allergies:   i.Allergies,
		Cuisine:     i.Cuisine,
		Healthy:     i.Healthy,
		CanPurchase: i.CanPurchase,
	}
}
