// Package modelstore persists trained models as ml_models rows, with the
// weights either inline or offloaded to a blob store.
package modelstore

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
)

// LatestVersion selects the newest active row regardless of version
const LatestVersion = "latest"

var (
	// ErrModelNotFound is returned when no row matches
	ErrModelNotFound = errors.New("model not found")
	// ErrSerialization wraps failures to encode a model or its metadata
	ErrSerialization = errors.New("model serialization failed")
)

// Meta describes a model being stored
type Meta struct {
	Name              string
	Type              string
	Version           string
	TrainingDataSize  int
	VocabularyVersion string
	// Metadata is stored as JSON
	Metadata any
}

// Store reads and writes ml_models rows
type Store struct {
	db      *gorm.DB
	blobs   BlobStore
	log     *zap.Logger
	tempDir string
}

// Option configures a Store
type Option func(*Store)

// WithBlobStore offloads model weights to b instead of the data column
func WithBlobStore(b BlobStore) Option {
	return func(s *Store) { s.blobs = b }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithTempDir sets the parent of the per-Put scratch directories
func WithTempDir(dir string) Option {
	return func(s *Store) { s.tempDir = dir }
}

// New creates a Store on db
func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put serializes m and inserts it as an inactive row. Nothing is written when
// serialization fails.
func (s *Store) Put(ctx context.Context, m encoding.BinaryMarshaler, meta Meta) (*model.MLModel, error) {
	data, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	metadata, err := json.Marshal(meta.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrSerialization, err)
	}

	row := &model.MLModel{
		ID:                uuid.New(),
		Name:              meta.Name,
		Type:              meta.Type,
		Version:           meta.Version,
		Metadata:          metadata,
		TrainingDataSize:  meta.TrainingDataSize,
		VocabularyVersion: meta.VocabularyVersion,
	}

	if s.blobs != nil {
		row.BlobKey = blobKey(row)
		if err := s.upload(ctx, row.BlobKey, data); err != nil {
			return nil, err
		}
	} else {
		row.Data = data
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		if s.blobs != nil {
			if derr := s.blobs.Delete(ctx, row.BlobKey); derr != nil {
				s.log.Warn("failed to remove orphaned model blob", zap.String("key", row.BlobKey), zap.Error(derr))
			}
		}
		return nil, fmt.Errorf("failed to insert model row: %w", err)
	}

	s.log.Info("stored model",
		zap.String("id", row.ID.String()),
		zap.String("name", row.Name),
		zap.String("version", row.Version),
		zap.Int("bytes", len(data)),
		zap.Bool("offloaded", row.BlobKey != ""),
	)
	return row, nil
}

// upload stages data in a scratch directory and sends it to the blob store.
// The directory is removed on every path.
func (s *Store) upload(ctx context.Context, key string, data []byte) error {
	dir, err := os.MkdirTemp(s.tempDir, "model-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "model.gob")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()
	if err := s.blobs.Put(ctx, key, f); err != nil {
		return fmt.Errorf("failed to upload model blob: %w", err)
	}
	return nil
}

func blobKey(m *model.MLModel) string {
	return fmt.Sprintf("models/%s/%s/%s.gob", m.Name, m.Version, m.ID)
}

// Get returns the newest active row for name. A version other than "" or
// LatestVersion restricts the match to that version.
func (s *Store) Get(ctx context.Context, name, version string) (*model.MLModel, error) {
	q := s.db.WithContext(ctx).Where("name = ? AND is_active = ?", name, true)
	if version != "" && version != LatestVersion {
		q = q.Where("version = ?", version)
	}
	var row model.MLModel
	if err := q.Order("created_at DESC").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s@%s", ErrModelNotFound, name, versionLabel(version))
		}
		return nil, err
	}
	return &row, nil
}

func versionLabel(v string) string {
	if v == "" {
		return LatestVersion
	}
	return v
}

// GetByID returns one row, active or not
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*model.MLModel, error) {
	var row model.MLModel
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
		}
		return nil, err
	}
	return &row, nil
}

// Payload returns the serialized weights of row, fetching offloaded blobs
func (s *Store) Payload(ctx context.Context, row *model.MLModel) ([]byte, error) {
	if len(row.Data) > 0 {
		return row.Data, nil
	}
	if row.BlobKey == "" {
		return nil, fmt.Errorf("model %s has no payload", row.ID)
	}
	if s.blobs == nil {
		return nil, fmt.Errorf("model %s is offloaded to %q but no blob store is configured", row.ID, row.BlobKey)
	}
	var buf bytes.Buffer
	if err := s.blobs.Get(ctx, row.BlobKey, &buf); err != nil {
		return nil, fmt.Errorf("failed to fetch model blob: %w", err)
	}
	return buf.Bytes(), nil
}

// Activate makes id the only active row of its name
func (s *Store) Activate(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.MLModel
		if err := tx.Select("id", "name").First(&row, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrModelNotFound, id)
			}
			return err
		}
		if err := tx.Model(&model.MLModel{}).Where("name = ?", row.Name).Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Model(&model.MLModel{}).Where("id = ?", id).Update("is_active", true).Error
	})
	if err != nil {
		return fmt.Errorf("failed to activate model %s: %w", id, err)
	}
	s.log.Info("activated model", zap.String("id", id.String()))
	return nil
}

// List returns the rows of name newest first, without their payloads
func (s *Store) List(ctx context.Context, name string) ([]model.MLModel, error) {
	var rows []model.MLModel
	q := s.db.WithContext(ctx).Omit("data").Order("created_at DESC")
	if name != "" {
		q = q.Where("name = ?", name)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SaveHistory records the epochs of a training run
func (s *Store) SaveHistory(ctx context.Context, id uuid.UUID, epochs []model.TrainingHistory) error {
	if len(epochs) == 0 {
		return nil
	}
	for i := range epochs {
		epochs[i].ModelID = id
	}
	return s.db.WithContext(ctx).CreateInBatches(epochs, 100).Error
}

// History returns the recorded epochs of a model in order
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]model.TrainingHistory, error) {
	var rows []model.TrainingHistory
	err := s.db.WithContext(ctx).Where("model_id = ?", id).Order("epoch").Find(&rows).Error
	return rows, err
}
