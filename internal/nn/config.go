// Package nn is a small feed-forward classifier built on gonum: dense ReLU
// layers with batch normalization and dropout, a softmax output, L2 weight
// decay and the Adam optimizer.
package nn

import "fmt"

// Config holds model configuration
type Config struct {
	InputDim     int     `json:"input_dim"`
	OutputDim    int     `json:"output_dim"`
	Hidden       []int   `json:"hidden_layers"`
	Dropout      float64 `json:"dropout"`
	LearningRate float64 `json:"learning_rate"`
	L2           float64 `json:"l2"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`

	// Patience is the number of epochs without validation improvement
	// tolerated before training stops
	Patience int `json:"patience"`
	// DecayEvery and DecayFactor shrink the learning rate periodically;
	// MinLRFraction floors it as a fraction of LearningRate
	DecayEvery    int     `json:"decay_every"`
	DecayFactor   float64 `json:"decay_factor"`
	MinLRFraction float64 `json:"min_lr_fraction"`

	Seed int64 `json:"seed"`
}

// DefaultConfig returns sensible defaults. InputDim and OutputDim must be set
// by the caller.
func DefaultConfig() Config {
	return Config{
		Hidden:        []int{128, 64, 32},
		Dropout:       0.2,
		LearningRate:  0.001,
		L2:            1e-4,
		Epochs:        50,
		BatchSize:     32,
		Patience:      15,
		DecayEvery:    5,
		DecayFactor:   0.9,
		MinLRFraction: 1e-4,
		Seed:          42,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	switch {
	case c.InputDim <= 0:
		return fmt.Errorf("input dimension must be positive, got %d", c.InputDim)
	case c.OutputDim < 2:
		return fmt.Errorf("output dimension must be at least 2, got %d", c.OutputDim)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0,1), got %g", c.Dropout)
	case c.LearningRate <= 0:
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	case c.Epochs <= 0:
		return fmt.Errorf("epochs must be positive, got %d", c.Epochs)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	for i, w := range c.Hidden {
		if w <= 0 {
			return fmt.Errorf("hidden layer %d width must be positive, got %d", i, w)
		}
	}
	return nil
}

// Architecture is one candidate of a model selection run
type Architecture struct {
	Name         string  `json:"name"`
	Hidden       []int   `json:"hidden_layers"`
	LearningRate float64 `json:"learning_rate"`
	Dropout      float64 `json:"dropout"`
}

// Apply returns base with the architecture's layers and hyperparameters
func (a Architecture) Apply(base Config) Config {
	base.Hidden = append([]int(nil), a.Hidden...)
	base.LearningRate = a.LearningRate
	base.Dropout = a.Dropout
	return base
}

// SelectionArchitectures are the candidates compared by model selection,
// with every width divided by divisor (minimum width 8). A divisor of 1 gives
// the full-size networks.
func SelectionArchitectures(divisor int) []Architecture {
	if divisor < 1 {
		divisor = 1
	}
	scale := func(widths ...int) []int {
		out := make([]int, len(widths))
		for i, w := range widths {
			out[i] = w / divisor
			if out[i] < 8 {
				out[i] = 8
			}
		}
		return out
	}
	return []Architecture{
		{Name: "deep_wide", Hidden: scale(512, 512, 256, 128, 64), LearningRate: 0.0005, Dropout: 0.4},
		{Name: "deep_wider", Hidden: scale(1024, 512, 256, 128, 64), LearningRate: 0.0003, Dropout: 0.45},
		{Name: "deep_tapered", Hidden: scale(768, 384, 192, 96, 48), LearningRate: 0.0004, Dropout: 0.4},
	}
}
