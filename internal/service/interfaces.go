package service

import (
	"context"
	"encoding"

	"github.com/google/uuid"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/modelstore"
)

// ModelStore persists trained models and their training history
type ModelStore interface {
	Put(ctx context.Context, m encoding.BinaryMarshaler, meta modelstore.Meta) (*model.MLModel, error)
	Get(ctx context.Context, name, version string) (*model.MLModel, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.MLModel, error)
	Payload(ctx context.Context, row *model.MLModel) ([]byte, error)
	Activate(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, name string) ([]model.MLModel, error)
	SaveHistory(ctx context.Context, id uuid.UUID, epochs []model.TrainingHistory) error
	History(ctx context.Context, id uuid.UUID) ([]model.TrainingHistory, error)
}

// InteractionLogger records recipe selections for later training runs
type InteractionLogger interface {
	LogInteraction(ctx context.Context, in *model.UserInteraction) error
}

// NearestReader ranks the corpus by ingredient embedding distance
type NearestReader interface {
	Nearest(ctx context.Context, available []string, limit int) ([]model.Recipe, error)
}

// IRecommender defines the engine operations served over HTTP
type IRecommender interface {
	Generate(ctx context.Context, req *model.Request) (*Generated, error)
	Suggest(ctx context.Context, profile *model.UserProfile) ([]Suggestion, error)
	Train(ctx context.Context, opts TrainOptions) (*TrainResult, error)
	PredictUserProfile(profile *model.UserProfile) ProfilePrediction
	Similar(ctx context.Context, available []string, limit int) ([]model.Recipe, error)
	RecordSelection(ctx context.Context, userID string, req *model.Request, recipeName string) error
	Activate(ctx context.Context, id uuid.UUID) error
	Models(ctx context.Context, name string) ([]model.MLModel, error)
	History(ctx context.Context, id uuid.UUID) ([]model.TrainingHistory, error)
}

var (
	_ IRecommender = (*Recommender)(nil)
	_ ModelStore   = (*modelstore.Store)(nil)
)
