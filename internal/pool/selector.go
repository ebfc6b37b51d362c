package pool

import (
	"math/rand/v2"
	"slices"
	"sync"
)

// Selector draws one photo uniformly at random from a candidate set.
// It holds no pool state; only its random source. Safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector seeded from the runtime's random source.
func NewSelector() *Selector {
	return NewSeededSelector(rand.Uint64(), rand.Uint64())
}

// NewSeededSelector creates a Selector with a fixed PCG seed, so a sequence of
// draws over the same candidates is reproducible.
func NewSeededSelector(seed1, seed2 uint64) *Selector {
	return &Selector{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Select returns one of ids, chosen uniformly at random.
// ids must be non-empty; an empty pool is the caller's concern.
func (s *Selector) Select(ids []string) string {
	// Sets arrive in arbitrary order; sort a copy so a seed fully determines the draw.
	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	s.mu.Lock()
	i := s.rng.IntN(len(sorted))
	s.mu.Unlock()

	return sorted[i]
}
