package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MLModel is a persisted trained model. At most one row per Name is active.
type MLModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	Name              string          `gorm:"size:100;index;not null" json:"name"`
	Type              string          `gorm:"size:50;not null" json:"type"`
	Version           string          `gorm:"size:50;not null" json:"version"`
	Data              []byte          `json:"-"`
	BlobKey           string          `gorm:"size:255" json:"blob_key,omitempty"`
	Metadata          json.RawMessage `gorm:"type:jsonb" json:"metadata"`
	TrainingDataSize  int             `json:"training_data_size"`
	VocabularyVersion string          `gorm:"size:64" json:"vocabulary_version"`
	IsActive          bool            `gorm:"index;not null;default:false" json:"is_active"`
}

// TableName pins the table name shared with the training scripts
func (MLModel) TableName() string {
	return "ml_models"
}

// BeforeCreate assigns an id when the caller did not
func (m *MLModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// TrainingHistory is one epoch of a training run
type TrainingHistory struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	ModelID      uuid.UUID `gorm:"type:uuid;index;not null" json:"model_id"`
	Epoch        int       `json:"epoch"`
	Loss         float64   `json:"loss"`
	Accuracy     float64   `json:"accuracy"`
	ValLoss      float64   `json:"val_loss"`
	ValAccuracy  float64   `json:"val_accuracy"`
	LearningRate float64   `json:"learning_rate"`
}

// TableName keeps the singular table name
func (TrainingHistory) TableName() string {
	return "training_history"
}
