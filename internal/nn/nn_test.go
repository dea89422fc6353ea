package nn

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/alchemorsel-v2/recommender/internal/dataset"
)

const classes = 3

// blobs returns n examples of three well separated clusters in four
// dimensions
func blobs(seed int64, n int) []dataset.Example {
	rng := rand.New(rand.NewSource(seed))
	out := make([]dataset.Example, n)
	for i := range out {
		label := i % classes
		x := make([]float64, 4)
		for j := range x {
			x[j] = rng.NormFloat64() * 0.1
		}
		x[label] += 1
		out[i] = dataset.Example{Features: x, Label: label}
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InputDim = 4
	cfg.OutputDim = classes
	cfg.Hidden = []int{16}
	cfg.Dropout = 0
	cfg.LearningRate = 0.01
	cfg.Epochs = 60
	cfg.BatchSize = 16
	cfg.Patience = 0
	return cfg
}

func trained(t *testing.T) *Network {
	t.Helper()
	net, err := New(testConfig())
	require.NoError(t, err)
	_, err = net.Fit(context.Background(), blobs(1, 210), blobs(2, 45), nil)
	require.NoError(t, err)
	return net
}

func TestNewValidatesConfig(t *testing.T) {
	cases := map[string]func(*Config){
		"input":   func(c *Config) { c.InputDim = 0 },
		"output":  func(c *Config) { c.OutputDim = 1 },
		"dropout": func(c *Config) { c.Dropout = 1 },
		"lr":      func(c *Config) { c.LearningRate = 0 },
		"width":   func(c *Config) { c.Hidden = []int{8, 0} },
		"batch":   func(c *Config) { c.BatchSize = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestPredictRequiresTraining(t *testing.T) {
	net, err := New(testConfig())
	require.NoError(t, err)
	_, err = net.Predict([]float64{1, 0, 0, 0})
	assert.ErrorIs(t, err, ErrNotTrained)
	_, err = net.Evaluate(blobs(1, 3))
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestFitLearnsSeparableClasses(t *testing.T) {
	net := trained(t)
	assert.True(t, net.Trained())

	m, err := net.Evaluate(blobs(3, 90))
	require.NoError(t, err)
	assert.Equal(t, 90, m.Samples)
	assert.GreaterOrEqual(t, m.Accuracy, 0.9)
	assert.GreaterOrEqual(t, m.F1, 0.85)
	assert.LessOrEqual(t, m.Precision, 1.0)

	probs, err := net.Predict([]float64{0, 1, 0, 0})
	require.NoError(t, err)
	require.Len(t, probs, classes)
	sum := 0.0
	for _, p := range probs {
		sum += p
	}
	assert.InDelta(t, 1, sum, 1e-9)

	_, err = net.Predict([]float64{1})
	assert.Error(t, err)
}

func TestFitRejectsBadExamples(t *testing.T) {
	net, err := New(testConfig())
	require.NoError(t, err)

	_, err = net.Fit(context.Background(), nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)

	_, err = net.Fit(context.Background(), []dataset.Example{{Features: []float64{1}, Label: 0}}, nil, nil)
	assert.Error(t, err)

	_, err = net.Fit(context.Background(), []dataset.Example{{Features: make([]float64, 4), Label: classes}}, nil, nil)
	assert.Error(t, err)
}

func TestFitEarlyStopping(t *testing.T) {
	cfg := testConfig()
	cfg.Epochs = 200
	cfg.Patience = 3
	net, err := New(cfg)
	require.NoError(t, err)

	// validation labels are rotated so learning the training set hurts them
	val := blobs(2, 45)
	for i := range val {
		val[i].Label = (val[i].Label + 1) % classes
	}
	history, err := net.Fit(context.Background(), blobs(1, 210), val, nil)
	require.NoError(t, err)
	assert.True(t, history.StoppedEarly)
	assert.Less(t, len(history.Epochs), cfg.Epochs)
	assert.Equal(t, history.BestEpoch+cfg.Patience, len(history.Epochs))
}

func TestFitRestoresBestWeights(t *testing.T) {
	cfg := testConfig()
	cfg.L2 = 0
	cfg.Epochs = 30
	net, err := New(cfg)
	require.NoError(t, err)

	val := blobs(2, 45)
	history, err := net.Fit(context.Background(), blobs(1, 210), val, nil)
	require.NoError(t, err)

	m, err := net.Evaluate(val)
	require.NoError(t, err)
	assert.InDelta(t, history.Best().ValLoss, m.Loss, 1e-9)
	for _, e := range history.Epochs {
		assert.GreaterOrEqual(t, e.ValLoss, history.Best().ValLoss)
	}
}

func TestFitLearningRateSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.Epochs = 12
	cfg.LearningRate = 0.01
	cfg.DecayEvery = 5
	cfg.DecayFactor = 0.5
	cfg.MinLRFraction = 0.3
	net, err := New(cfg)
	require.NoError(t, err)

	var seen []float64
	history, err := net.Fit(context.Background(), blobs(1, 60), nil, func(e EpochStats) {
		seen = append(seen, e.LearningRate)
	})
	require.NoError(t, err)
	require.Len(t, history.Epochs, 12)
	require.Len(t, seen, 12)

	for i, lr := range seen {
		switch epoch := i + 1; {
		case epoch <= 5:
			assert.InDelta(t, 0.01, lr, 1e-12, "epoch %d", epoch)
		case epoch <= 10:
			assert.InDelta(t, 0.005, lr, 1e-12, "epoch %d", epoch)
		default:
			assert.InDelta(t, 0.003, lr, 1e-12, "epoch %d", epoch)
		}
	}
}

func TestFitCancelled(t *testing.T) {
	net, err := New(testConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = net.Fit(ctx, blobs(1, 60), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, net.Trained())
}

func TestTopK(t *testing.T) {
	net := trained(t)
	x := []float64{0, 0, 1, 0}

	preds, err := net.TopK(x, 2)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 2, preds[0].Class)
	assert.GreaterOrEqual(t, preds[0].Probability, preds[1].Probability)

	all, err := net.TopK(x, 0)
	require.NoError(t, err)
	assert.Len(t, all, classes)
}

func TestSerialization(t *testing.T) {
	net := trained(t)
	data, err := net.MarshalBinary()
	require.NoError(t, err)

	var back Network
	require.NoError(t, back.UnmarshalBinary(data))
	assert.Equal(t, net.Config(), back.Config())
	assert.True(t, back.Trained())

	for _, ex := range blobs(4, 12) {
		want, err := net.Predict(ex.Features)
		require.NoError(t, err)
		got, err := back.Predict(ex.Features)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-12)
	}

	t.Run("save and load", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, net.Save(&buf))
		loaded, err := Load(&buf)
		require.NoError(t, err)
		assert.Equal(t, net.Config(), loaded.Config())
	})

	t.Run("corrupt", func(t *testing.T) {
		var n Network
		assert.Error(t, n.UnmarshalBinary([]byte("not a network")))
		assert.Error(t, n.UnmarshalBinary(data[:len(data)/2]))
	})
}

func TestSelectionArchitectures(t *testing.T) {
	archs := SelectionArchitectures(16)
	require.Len(t, archs, 3)
	assert.Equal(t, []int{32, 32, 16, 8, 8}, archs[0].Hidden)
	assert.Equal(t, []int{512, 512, 256, 128, 64}, SelectionArchitectures(1)[0].Hidden)

	cfg := archs[1].Apply(testConfig())
	assert.Equal(t, archs[1].LearningRate, cfg.LearningRate)
	assert.Equal(t, archs[1].Dropout, cfg.Dropout)
	assert.Equal(t, 4, cfg.InputDim)
}

func TestSelectBest(t *testing.T) {
	split := dataset.Split{Train: blobs(1, 150), Validation: blobs(2, 30), Test: blobs(3, 30)}
	archs := []Architecture{
		{Name: "small", Hidden: []int{8}, LearningRate: 0.01},
		{Name: "two", Hidden: []int{16, 8}, LearningRate: 0.01},
	}
	base := testConfig()
	base.Epochs = 20

	epochs := make(chan string, 100)
	sel, err := SelectBest(context.Background(), base, archs, split, 2, func(a Architecture, _ EpochStats) {
		epochs <- a.Name
	})
	require.NoError(t, err)
	require.Len(t, sel.Candidates, 2)
	assert.GreaterOrEqual(t, sel.Candidates[0].Metrics.Accuracy, sel.Candidates[1].Metrics.Accuracy)
	assert.Len(t, epochs, 40)

	best := sel.Best()
	sel.Release()
	assert.NotNil(t, best.Network)
	assert.Nil(t, sel.Candidates[1].Network)

	t.Run("no architectures", func(t *testing.T) {
		_, err := SelectBest(context.Background(), base, nil, split, 1, nil)
		assert.Error(t, err)
	})
}
