package dataset

import "math/rand"

// Split holds the three partitions of a shuffled example set
type Split struct {
	Train      []Example
	Validation []Example
	Test       []Example
}

// Fractions of the train and validation partitions; test takes the rest
const (
	TrainFraction      = 0.7
	ValidationFraction = 0.15
)

// Shuffle permutes examples in place
func Shuffle(examples []Example, rng *rand.Rand) {
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
}

// SplitExamples shuffles and partitions examples 70/15/15. Partition sizes
// always sum to len(examples).
func SplitExamples(examples []Example, rng *rand.Rand) Split {
	return SplitHoldout(examples, rng, ValidationFraction)
}

// SplitHoldout shuffles examples and holds out the fraction holdout of them
// for validation and the same fraction for test; train keeps the rest. Test
// also takes the rounding remainder. A holdout outside (0, 0.5) uses
// ValidationFraction.
func SplitHoldout(examples []Example, rng *rand.Rand, holdout float64) Split {
	trainFrac := TrainFraction
	switch {
	case holdout <= 0 || holdout >= 0.5:
		holdout = ValidationFraction
	case holdout != ValidationFraction:
		trainFrac = 1 - 2*holdout
	}
	shuffled := append([]Example(nil), examples...)
	Shuffle(shuffled, rng)

	n := len(shuffled)
	trainEnd := int(float64(n) * trainFrac)
	valEnd := trainEnd + int(float64(n)*holdout)
	return Split{
		Train:      shuffled[:trainEnd],
		Validation: shuffled[trainEnd:valEnd],
		Test:       shuffled[valEnd:],
	}
}

// Size is the total number of examples
func (s Split) Size() int {
	return len(s.Train) + len(s.Validation) + len(s.Test)
}
