package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pageza/alchemorsel-v2/recommender/internal/features"
	"github.com/pageza/alchemorsel-v2/recommender/internal/ingredient"
	"github.com/pageza/alchemorsel-v2/recommender/internal/metrics"
	"github.com/pageza/alchemorsel-v2/recommender/internal/model"
	"github.com/pageza/alchemorsel-v2/recommender/internal/modelstore"
	"github.com/pageza/alchemorsel-v2/recommender/internal/nn"
)

// ModelMetadata is stored as JSON with every trained model. Labels name the
// recipe behind each output class.
type ModelMetadata struct {
	Vocabulary   *features.Vocabulary `json:"vocabulary"`
	Stats        features.Stats       `json:"stats"`
	Labels       []string             `json:"labels"`
	Config       nn.Config            `json:"config"`
	Architecture string               `json:"architecture,omitempty"`
	Metrics      nn.Metrics           `json:"metrics"`
	Synthetic    bool                 `json:"synthetic_data"`
	BestEpoch    int                  `json:"best_epoch"`
	StoppedEarly bool                 `json:"stopped_early"`
	CorpusSize   int                  `json:"corpus_size"`
}

type loadedModel struct {
	id      uuid.UUID
	version string
	net     *nn.Network
	encoder *features.Encoder
	labels  []string
	checked time.Time
}

type activeRef struct {
	ID uuid.UUID `json:"id"`
}

func (r *Recommender) activeKey() string {
	return "active_model:" + r.modelCfg.Name
}

// activeModel returns the deserialized active model, reusing the loaded
// copy while its id is still the active one
func (r *Recommender) activeModel(ctx context.Context) (*loadedModel, error) {
	r.mu.RLock()
	cur := r.active
	r.mu.RUnlock()
	if cur != nil && time.Since(cur.checked) < r.modelCfg.CacheTTL {
		metrics.ModelCacheHits.Inc()
		return cur, nil
	}

	var ref activeRef
	hit, err := r.cache.GetJSON(ctx, r.activeKey(), &ref)
	if err != nil {
		r.log.Warn("active model cache lookup failed", zap.Error(err))
	}

	var row *model.MLModel
	if !hit {
		row, err = r.store.Get(ctx, r.modelCfg.Name, modelstore.LatestVersion)
		if errors.Is(err, modelstore.ErrModelNotFound) {
			return nil, fmt.Errorf("%w: no active %s model", ErrModelUnavailable, r.modelCfg.Name)
		}
		if err != nil {
			return nil, err
		}
		ref.ID = row.ID
		if err := r.cache.SetJSON(ctx, r.activeKey(), ref, r.modelCfg.CacheTTL); err != nil {
			r.log.Warn("failed to cache active model id", zap.Error(err))
		}
	}

	if cur != nil && cur.id == ref.ID {
		refreshed := *cur
		refreshed.checked = time.Now()
		r.setActive(&refreshed)
		return &refreshed, nil
	}

	if row == nil {
		row, err = r.store.GetByID(ctx, ref.ID)
		if errors.Is(err, modelstore.ErrModelNotFound) {
			r.invalidate(ctx)
			return nil, fmt.Errorf("%w: cached model %s no longer exists", ErrModelUnavailable, ref.ID)
		}
		if err != nil {
			return nil, err
		}
	}

	loaded, err := r.load(ctx, row)
	if err != nil {
		return nil, err
	}
	r.setActive(loaded)
	r.log.Info("loaded model",
		zap.String("id", loaded.id.String()),
		zap.String("version", loaded.version),
		zap.Int("classes", len(loaded.labels)),
	)
	return loaded, nil
}

func (r *Recommender) setActive(m *loadedModel) {
	r.mu.Lock()
	r.active = m
	r.mu.Unlock()
}

// invalidate forgets the active model on this and, through redis, every
// other instance
func (r *Recommender) invalidate(ctx context.Context) {
	r.setActive(nil)
	if err := r.cache.Delete(ctx, r.activeKey()); err != nil {
		r.log.Warn("failed to clear active model cache", zap.Error(err))
	}
}

func (r *Recommender) load(ctx context.Context, row *model.MLModel) (*loadedModel, error) {
	var meta ModelMetadata
	if err := json.Unmarshal(row.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("%w: model %s metadata: %v", ErrModelUnavailable, row.ID, err)
	}
	if meta.Vocabulary == nil || len(meta.Labels) == 0 {
		return nil, fmt.Errorf("%w: model %s has no vocabulary or labels", ErrModelUnavailable, row.ID)
	}
	if err := meta.Vocabulary.Check(row.VocabularyVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	payload, err := r.store.Payload(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", row.ID, err)
	}
	net, err := nn.Load(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	enc := features.NewEncoder(meta.Vocabulary, &meta.Stats)
	cfg := net.Config()
	if cfg.InputDim != enc.RequestDim() || cfg.OutputDim != len(meta.Labels) {
		return nil, fmt.Errorf("%w: model %s shape %dx%d does not fit %d features and %d labels",
			ErrModelUnavailable, row.ID, cfg.InputDim, cfg.OutputDim, enc.RequestDim(), len(meta.Labels))
	}

	return &loadedModel{
		id:      row.ID,
		version: row.Version,
		net:     net,
		encoder: enc,
		labels:  meta.Labels,
		checked: time.Now(),
	}, nil
}

// rankWithModel orders candidates by the active model's top predictions and
// appends the candidates it did not predict in heuristic order, so a budget
// search can still reach them. The model is only used when it was trained on
// a corpus with the same vocabulary as recipes.
func (r *Recommender) rankWithModel(ctx context.Context, recipes, candidates []model.Recipe, req *model.Request) ([]model.ScoredCandidate, error) {
	m, err := r.activeModel(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.encoder.Vocabulary().Check(features.BuildVocabulary(recipes).Version()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	preds, err := m.net.TopK(m.encoder.EncodeRequest(req), r.modelCfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	byName := make(map[string]int, len(candidates))
	for i := range candidates {
		key := ingredient.Normalize(candidates[i].Name)
		if _, dup := byName[key]; !dup {
			byName[key] = i
		}
	}

	picked := make([]bool, len(candidates))
	out := make([]model.ScoredCandidate, 0, len(candidates))
	for _, p := range preds {
		if p.Class < 0 || p.Class >= len(m.labels) {
			continue
		}
		i, ok := byName[ingredient.Normalize(m.labels[p.Class])]
		if !ok || picked[i] {
			continue
		}
		picked[i] = true
		sc := r.scorer.Score(&candidates[i], req)
		sc.Score = p.Probability
		out = append(out, sc)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no top-%d prediction is among the %d candidates",
			ErrModelUnavailable, r.modelCfg.TopK, len(candidates))
	}

	rest := make([]model.Recipe, 0, len(candidates)-len(out))
	for i := range candidates {
		if !picked[i] {
			rest = append(rest, candidates[i])
		}
	}
	return append(out, r.scorer.Rank(rest, req)...), nil
}
