package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	bnMomentum = 0.9
	bnEpsilon  = 1e-3
)

// ErrNotTrained is returned when predicting with an untrained network
var ErrNotTrained = errors.New("network is not trained")

// dense is a fully connected layer, W is in x out
type dense struct {
	W *mat.Dense
	B []float64
}

func newDense(in, out int) dense {
	return dense{W: mat.NewDense(in, out, nil), B: make([]float64, out)}
}

func (d *dense) apply(x mat.Matrix) *mat.Dense {
	r, _ := x.Dims()
	_, c := d.W.Dims()
	out := mat.NewDense(r, c, nil)
	out.Mul(x, d.W)
	for i := 0; i < r; i++ {
		floats.Add(out.RawRowView(i), d.B)
	}
	return out
}

// batchNorm keeps running statistics used at inference
type batchNorm struct {
	Gamma []float64
	Beta  []float64
	Mean  []float64
	Var   []float64
}

func newBatchNorm(n int) batchNorm {
	bn := batchNorm{
		Gamma: make([]float64, n),
		Beta:  make([]float64, n),
		Mean:  make([]float64, n),
		Var:   make([]float64, n),
	}
	for i := range bn.Gamma {
		bn.Gamma[i] = 1
		bn.Var[i] = 1
	}
	return bn
}

// infer normalizes x in place with the running statistics
func (bn *batchNorm) infer(x *mat.Dense) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		for j, v := range row {
			row[j] = bn.Gamma[j]*(v-bn.Mean[j])/math.Sqrt(bn.Var[j]+bnEpsilon) + bn.Beta[j]
		}
	}
}

type hidden struct {
	dense dense
	bn    batchNorm
}

// Network is a feed-forward softmax classifier. Predict is safe for concurrent
// use; Fit takes an exclusive lock.
type Network struct {
	mu      sync.RWMutex
	cfg     Config
	layers  []hidden
	out     dense
	trained bool
}

// New creates a network with He-initialized hidden layers and a
// Glorot-initialized output layer
func New(cfg Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid network config: %w", err)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	n := &Network{cfg: cfg}

	in := cfg.InputDim
	for _, width := range cfg.Hidden {
		d := newDense(in, width)
		std := math.Sqrt(2.0 / float64(in))
		fill(d.W, func() float64 { return rng.NormFloat64() * std })
		n.layers = append(n.layers, hidden{dense: d, bn: newBatchNorm(width)})
		in = width
	}

	n.out = newDense(in, cfg.OutputDim)
	limit := math.Sqrt(6.0 / float64(in+cfg.OutputDim))
	fill(n.out.W, func() float64 { return (rng.Float64()*2 - 1) * limit })
	return n, nil
}

func fill(m *mat.Dense, next func() float64) {
	data := m.RawMatrix().Data
	for i := range data {
		data[i] = next()
	}
}

// Config returns the network configuration
func (n *Network) Config() Config {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cfg := n.cfg
	cfg.Hidden = append([]int(nil), n.cfg.Hidden...)
	return cfg
}

// Trained reports whether Fit completed at least once
func (n *Network) Trained() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trained
}

// forward runs inference mode: running batch statistics, no dropout
func (n *Network) forward(x mat.Matrix) *mat.Dense {
	h := x
	for i := range n.layers {
		l := &n.layers[i]
		z := l.dense.apply(h)
		relu(z)
		l.bn.infer(z)
		h = z
	}
	probs := n.out.apply(h)
	softmaxRows(probs)
	return probs
}

// Predict returns the class probabilities for one feature vector
func (n *Network) Predict(x []float64) ([]float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.trained {
		return nil, ErrNotTrained
	}
	if len(x) != n.cfg.InputDim {
		return nil, fmt.Errorf("feature length %d, network expects %d", len(x), n.cfg.InputDim)
	}
	in := mat.NewDense(1, len(x), append([]float64(nil), x...))
	return append([]float64(nil), n.forward(in).RawRowView(0)...), nil
}

// Prediction is a class index and its probability
type Prediction struct {
	Class       int     `json:"class"`
	Probability float64 `json:"probability"`
}

// TopK returns the k most probable classes, most probable first
func (n *Network) TopK(x []float64, k int) ([]Prediction, error) {
	probs, err := n.Predict(x)
	if err != nil {
		return nil, err
	}
	preds := make([]Prediction, len(probs))
	for i, p := range probs {
		preds[i] = Prediction{Class: i, Probability: p}
	}
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Probability > preds[j].Probability })
	if k > 0 && k < len(preds) {
		preds = preds[:k]
	}
	return preds, nil
}

func relu(m *mat.Dense) {
	m.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	}, m)
}

func softmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		peak := floats.Max(row)
		sum := 0.0
		for j, v := range row {
			row[j] = math.Exp(v - peak)
			sum += row[j]
		}
		floats.Scale(1/sum, row)
	}
}
