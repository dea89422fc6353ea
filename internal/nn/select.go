package nn

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pageza/alchemorsel-v2/recommender/internal/dataset"
)

// Candidate is one trained architecture of a selection run
type Candidate struct {
	Architecture Architecture
	Network      *Network
	History      *History
	Metrics      Metrics
}

// Selection holds every candidate, best test accuracy first
type Selection struct {
	Candidates []*Candidate
}

// Best returns the winning candidate
func (s *Selection) Best() *Candidate {
	if len(s.Candidates) == 0 {
		return nil
	}
	return s.Candidates[0]
}

// Release drops the networks of every candidate but the best so their
// weights can be collected
func (s *Selection) Release() {
	if len(s.Candidates) < 2 {
		return
	}
	for _, c := range s.Candidates[1:] {
		c.Network = nil
	}
}

// SelectBest trains one network per architecture concurrently, evaluates each
// on split.Test and ranks them by test accuracy. parallel bounds the number of
// concurrent fits; values below 1 mean one at a time.
func SelectBest(ctx context.Context, base Config, archs []Architecture, split dataset.Split, parallel int, onEpoch func(Architecture, EpochStats)) (*Selection, error) {
	if len(archs) == 0 {
		return nil, fmt.Errorf("no architectures to select from")
	}
	if parallel < 1 {
		parallel = 1
	}

	candidates := make([]*Candidate, len(archs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, arch := range archs {
		g.Go(func() error {
			cfg := arch.Apply(base)
			cfg.Seed = base.Seed + int64(i)
			net, err := New(cfg)
			if err != nil {
				return fmt.Errorf("%s: %w", arch.Name, err)
			}
			var report func(EpochStats)
			if onEpoch != nil {
				report = func(e EpochStats) { onEpoch(arch, e) }
			}
			history, err := net.Fit(ctx, split.Train, split.Validation, report)
			if err != nil {
				return fmt.Errorf("%s: %w", arch.Name, err)
			}
			eval := split.Test
			if len(eval) == 0 {
				eval = split.Validation
			}
			metrics, err := net.Evaluate(eval)
			if err != nil {
				return fmt.Errorf("%s: %w", arch.Name, err)
			}
			candidates[i] = &Candidate{Architecture: arch, Network: net, History: history, Metrics: metrics}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Metrics.Accuracy > candidates[j].Metrics.Accuracy
	})
	return &Selection{Candidates: candidates}, nil
}
