package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/pageza/alchemorsel-v2/recommender/internal/dataset"
)

// Metrics summarize a network on a held-out set. Precision, Recall and F1
// are macro averages over every class that occurs as a label or a
// prediction; a class never predicted contributes zero precision.
type Metrics struct {
	Samples   int     `json:"samples"`
	Loss      float64 `json:"loss"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
}

type classCounts struct {
	tp, fp, fn int
}

// Evaluate scores the network on examples
func (n *Network) Evaluate(examples []dataset.Example) (Metrics, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.trained {
		return Metrics{}, ErrNotTrained
	}
	if len(examples) == 0 {
		return Metrics{}, nil
	}
	x, labels, err := n.matrix(examples)
	if err != nil {
		return Metrics{}, fmt.Errorf("evaluation set: %w", err)
	}
	probs := n.forward(x)
	loss, correct := crossEntropy(probs, labels)

	counts := map[int]*classCounts{}
	get := func(c int) *classCounts {
		if counts[c] == nil {
			counts[c] = &classCounts{}
		}
		return counts[c]
	}
	for i, label := range labels {
		pred := floats.MaxIdx(probs.RawRowView(i))
		if pred == label {
			get(label).tp++
			continue
		}
		get(pred).fp++
		get(label).fn++
	}

	m := Metrics{
		Samples:  len(labels),
		Loss:     loss / float64(len(labels)),
		Accuracy: float64(correct) / float64(len(labels)),
	}
	for _, c := range counts {
		var p, r, f float64
		if c.tp+c.fp > 0 {
			p = float64(c.tp) / float64(c.tp+c.fp)
		}
		if c.tp+c.fn > 0 {
			r = float64(c.tp) / float64(c.tp+c.fn)
		}
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		m.Precision += p
		m.Recall += r
		m.F1 += f
	}
	k := float64(len(counts))
	m.Precision /= k
	m.Recall /= k
	m.F1 /= k
	return m, nil
}
