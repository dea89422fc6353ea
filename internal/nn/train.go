package nn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/pageza/alchemorsel-v2/recommender/internal/dataset"
)

// ErrEmptyTrainingSet is returned by Fit when there is nothing to learn from
var ErrEmptyTrainingSet = errors.New("empty training set")

// EpochStats is one row of training history
type EpochStats struct {
	Epoch        int     `json:"epoch"`
	Loss         float64 `json:"loss"`
	Accuracy     float64 `json:"accuracy"`
	ValLoss      float64 `json:"val_loss"`
	ValAccuracy  float64 `json:"val_accuracy"`
	LearningRate float64 `json:"learning_rate"`
}

// History records a Fit run
type History struct {
	Epochs       []EpochStats `json:"epochs"`
	BestEpoch    int          `json:"best_epoch"`
	StoppedEarly bool         `json:"stopped_early"`
}

// Best returns the stats of the epoch whose weights were kept
func (h *History) Best() EpochStats {
	for _, e := range h.Epochs {
		if e.Epoch == h.BestEpoch {
			return e
		}
	}
	return EpochStats{}
}

// param is a trainable tensor with its gradient and Adam moments
type param struct {
	val   []float64
	grad  []float64
	m, v  []float64
	decay bool
}

func newParam(val []float64, decay bool) *param {
	return &param{
		val:   val,
		grad:  make([]float64, len(val)),
		m:     make([]float64, len(val)),
		v:     make([]float64, len(val)),
		decay: decay,
	}
}

// adam implements the Adam update rule
type adam struct {
	beta1, beta2, eps float64
	t                 int
}

func newAdam() *adam { return &adam{beta1: 0.9, beta2: 0.999, eps: 1e-7} }

func (a *adam) step(params []*param, lr float64) {
	a.t++
	lrT := lr * math.Sqrt(1-math.Pow(a.beta2, float64(a.t))) / (1 - math.Pow(a.beta1, float64(a.t)))
	for _, p := range params {
		for i, g := range p.grad {
			p.m[i] = a.beta1*p.m[i] + (1-a.beta1)*g
			p.v[i] = a.beta2*p.v[i] + (1-a.beta2)*g*g
			p.val[i] -= lrT * p.m[i] / (math.Sqrt(p.v[i]) + a.eps)
		}
	}
}

// trainCache holds one hidden layer's activations for the backward pass
type trainCache struct {
	in     mat.Matrix
	act    *mat.Dense // post-ReLU
	xhat   *mat.Dense
	invStd []float64
	mask   *mat.Dense
}

// layerParams are the params of one hidden layer in a fixed order
type layerParams struct {
	w, b, gamma, beta *param
}

type trainer struct {
	net    *Network
	rng    *rand.Rand
	hidden []layerParams
	outW   *param
	outB   *param
	all    []*param
	opt    *adam
}

func newTrainer(n *Network) *trainer {
	t := &trainer{net: n, rng: rand.New(rand.NewSource(n.cfg.Seed + 1)), opt: newAdam()}
	for i := range n.layers {
		l := &n.layers[i]
		lp := layerParams{
			w:     newParam(l.dense.W.RawMatrix().Data, true),
			b:     newParam(l.dense.B, false),
			gamma: newParam(l.bn.Gamma, false),
			beta:  newParam(l.bn.Beta, false),
		}
		t.hidden = append(t.hidden, lp)
		t.all = append(t.all, lp.w, lp.b, lp.gamma, lp.beta)
	}
	t.outW = newParam(n.out.W.RawMatrix().Data, true)
	t.outB = newParam(n.out.B, false)
	t.all = append(t.all, t.outW, t.outB)
	return t
}

// l2Penalty is the weight decay term added to the loss
func (t *trainer) l2Penalty() float64 {
	if t.net.cfg.L2 == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range t.all {
		if p.decay {
			sum += floats.Dot(p.val, p.val)
		}
	}
	return t.net.cfg.L2 * sum
}

// batch runs one forward/backward pass and an optimizer step, returning the
// summed cross-entropy and the number of correct predictions
func (t *trainer) batch(x *mat.Dense, labels []int, lr float64) (float64, int) {
	n := t.net
	rows, _ := x.Dims()
	caches := make([]trainCache, len(n.layers))

	var h mat.Matrix = x
	for i := range n.layers {
		l := &n.layers[i]
		c := &caches[i]
		c.in = h
		c.act = l.dense.apply(h)
		relu(c.act)
		y := t.normalize(&l.bn, c)
		if n.cfg.Dropout > 0 {
			c.mask = t.dropoutMask(y)
			y.MulElem(y, c.mask)
		}
		h = y
	}
	probs := n.out.apply(h)
	softmaxRows(probs)

	loss, correct := crossEntropy(probs, labels)

	// dL/dlogits = (p - onehot) / rows
	delta := mat.DenseCopyOf(probs)
	for i, label := range labels {
		delta.Set(i, label, delta.At(i, label)-1)
	}
	delta.Scale(1/float64(rows), delta)

	t.denseGrad(t.outW, t.outB, h, delta)
	var dh mat.Dense
	dh.Mul(delta, n.out.W.T())

	for i := len(n.layers) - 1; i >= 0; i-- {
		l := &n.layers[i]
		c := &caches[i]
		lp := t.hidden[i]

		dy := mat.DenseCopyOf(&dh)
		if c.mask != nil {
			dy.MulElem(dy, c.mask)
		}
		da := t.normalizeGrad(&l.bn, lp, c, dy)
		da.Apply(func(r, col int, v float64) float64 {
			if c.act.At(r, col) <= 0 {
				return 0
			}
			return v
		}, da)

		t.denseGrad(lp.w, lp.b, c.in, da)
		if i > 0 {
			dh.Reset()
			dh.Mul(da, l.dense.W.T())
		}
	}

	t.opt.step(t.all, lr)
	return loss, correct
}

// normalize applies training-mode batch normalization and updates the
// running statistics
func (t *trainer) normalize(bn *batchNorm, c *trainCache) *mat.Dense {
	rows, cols := c.act.Dims()
	c.xhat = mat.NewDense(rows, cols, nil)
	c.invStd = make([]float64, cols)
	y := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		col := mat.Col(nil, j, c.act)
		mean, variance := stat.PopMeanVariance(col, nil)
		c.invStd[j] = 1 / math.Sqrt(variance+bnEpsilon)
		for i, v := range col {
			xh := (v - mean) * c.invStd[j]
			c.xhat.Set(i, j, xh)
			y.Set(i, j, bn.Gamma[j]*xh+bn.Beta[j])
		}
		bn.Mean[j] = bnMomentum*bn.Mean[j] + (1-bnMomentum)*mean
		bn.Var[j] = bnMomentum*bn.Var[j] + (1-bnMomentum)*variance
	}
	return y
}

// normalizeGrad fills the gamma and beta gradients and returns dL/dinput
func (t *trainer) normalizeGrad(bn *batchNorm, lp layerParams, c *trainCache, dy *mat.Dense) *mat.Dense {
	rows, cols := dy.Dims()
	n := float64(rows)
	da := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		var sumDy, sumDyXhat float64
		for i := 0; i < rows; i++ {
			g := dy.At(i, j)
			sumDy += g
			sumDyXhat += g * c.xhat.At(i, j)
		}
		lp.gamma.grad[j] = sumDyXhat
		lp.beta.grad[j] = sumDy

		// with dxhat = dy*gamma the sums scale by gamma
		gamma := bn.Gamma[j]
		for i := 0; i < rows; i++ {
			dxhat := dy.At(i, j) * gamma
			v := c.invStd[j] / n * (n*dxhat - gamma*sumDy - c.xhat.At(i, j)*gamma*sumDyXhat)
			da.Set(i, j, v)
		}
	}
	return da
}

// denseGrad fills the weight and bias gradients of a dense layer
func (t *trainer) denseGrad(w, b *param, in mat.Matrix, delta *mat.Dense) {
	var dw mat.Dense
	dw.Mul(in.T(), delta)
	copy(w.grad, dw.RawMatrix().Data)
	if l2 := t.net.cfg.L2; l2 > 0 {
		floats.AddScaled(w.grad, 2*l2, w.val)
	}
	rows, cols := delta.Dims()
	for j := 0; j < cols; j++ {
		sum := 0.0
		for i := 0; i < rows; i++ {
			sum += delta.At(i, j)
		}
		b.grad[j] = sum
	}
}

func (t *trainer) dropoutMask(like *mat.Dense) *mat.Dense {
	rows, cols := like.Dims()
	rate := t.net.cfg.Dropout
	keep := 1 / (1 - rate)
	mask := mat.NewDense(rows, cols, nil)
	data := mask.RawMatrix().Data
	for i := range data {
		if t.rng.Float64() >= rate {
			data[i] = keep
		}
	}
	return mask
}

// crossEntropy returns the summed loss and correct count of a batch
func crossEntropy(probs *mat.Dense, labels []int) (float64, int) {
	loss := 0.0
	correct := 0
	for i, label := range labels {
		row := probs.RawRowView(i)
		loss -= math.Log(math.Max(row[label], 1e-15))
		if floats.MaxIdx(row) == label {
			correct++
		}
	}
	return loss, correct
}

// Fit trains the network with mini-batch Adam. Training stops after
// cfg.Epochs, when validation loss has not improved for cfg.Patience epochs,
// or when ctx is cancelled. The weights of the best epoch are restored. An
// empty validation set monitors training loss instead. onEpoch may be nil.
func (n *Network) Fit(ctx context.Context, train, val []dataset.Example, onEpoch func(EpochStats)) (*History, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(train) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	x, labels, err := n.matrix(train)
	if err != nil {
		return nil, fmt.Errorf("training set: %w", err)
	}
	var vx *mat.Dense
	var vlabels []int
	if len(val) > 0 {
		if vx, vlabels, err = n.matrix(val); err != nil {
			return nil, fmt.Errorf("validation set: %w", err)
		}
	}

	t := newTrainer(n)
	cfg := n.cfg
	lr := cfg.LearningRate
	floor := cfg.LearningRate * cfg.MinLRFraction
	history := &History{}
	best := math.Inf(1)
	var bestState *state
	wait := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if cfg.DecayEvery > 0 && epoch > cfg.DecayEvery && (epoch-1)%cfg.DecayEvery == 0 && cfg.DecayFactor > 0 {
			lr = math.Max(lr*cfg.DecayFactor, floor)
		}

		var sumLoss float64
		var correct int
		for _, idx := range t.batches(len(train), cfg.BatchSize) {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("training cancelled at epoch %d: %w", epoch, err)
			}
			bx, bl := gather(x, labels, idx)
			l, c := t.batch(bx, bl, lr)
			sumLoss += l
			correct += c
		}

		stats := EpochStats{
			Epoch:        epoch,
			Loss:         sumLoss/float64(len(train)) + t.l2Penalty(),
			Accuracy:     float64(correct) / float64(len(train)),
			LearningRate: lr,
		}
		monitor := stats.Loss
		if vx != nil {
			vl, vc := crossEntropy(n.forward(vx), vlabels)
			stats.ValLoss = vl/float64(len(vlabels)) + t.l2Penalty()
			stats.ValAccuracy = float64(vc) / float64(len(vlabels))
			monitor = stats.ValLoss
		}
		history.Epochs = append(history.Epochs, stats)
		if onEpoch != nil {
			onEpoch(stats)
		}

		if monitor < best {
			best = monitor
			bestState = n.snapshot()
			history.BestEpoch = epoch
			wait = 0
			continue
		}
		wait++
		if cfg.Patience > 0 && wait >= cfg.Patience {
			history.StoppedEarly = true
			break
		}
	}

	if bestState != nil {
		n.restore(bestState)
	}
	n.trained = true
	return history, nil
}

// batches returns shuffled index batches. A trailing batch of one row is
// merged into its predecessor so batch statistics stay defined.
func (t *trainer) batches(n, size int) [][]int {
	perm := t.rng.Perm(n)
	var out [][]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, perm[start:end])
	}
	if last := len(out) - 1; last > 0 && len(out[last]) == 1 {
		out[last-1] = append(out[last-1], out[last]...)
		out = out[:last]
	}
	return out
}

func gather(x *mat.Dense, labels []int, idx []int) (*mat.Dense, []int) {
	_, cols := x.Dims()
	bx := mat.NewDense(len(idx), cols, nil)
	bl := make([]int, len(idx))
	for i, r := range idx {
		bx.SetRow(i, x.RawRowView(r))
		bl[i] = labels[r]
	}
	return bx, bl
}

// matrix converts examples into a feature matrix and label slice
func (n *Network) matrix(examples []dataset.Example) (*mat.Dense, []int, error) {
	x := mat.NewDense(len(examples), n.cfg.InputDim, nil)
	labels := make([]int, len(examples))
	for i, ex := range examples {
		if len(ex.Features) != n.cfg.InputDim {
			return nil, nil, fmt.Errorf("example %d has %d features, want %d", i, len(ex.Features), n.cfg.InputDim)
		}
		if ex.Label < 0 || ex.Label >= n.cfg.OutputDim {
			return nil, nil, fmt.Errorf("example %d label %d outside [0,%d)", i, ex.Label, n.cfg.OutputDim)
		}
		x.SetRow(i, ex.Features)
		labels[i] = ex.Label
	}
	return x, labels, nil
}
