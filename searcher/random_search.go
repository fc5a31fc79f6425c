package searcher

import (
	"math/rand"
	"time"

	"github.com/notargets/kerneltuner/kernel"
)

// RandomSearch draws a fraction of the valid enumeration uniformly without
// replacement, in randomized order. Feedback does not steer the search.
type RandomSearch struct {
	base
	order []uint64
	step  uint64
}

// NewRandomSearch creates a random searcher visiting ceil(fraction*N)
// distinct configurations. The seed makes runs reproducible.
func NewRandomSearch(configurations []kernel.Configuration, fraction float64, seed int64) *RandomSearch {
	s := &RandomSearch{base: newBase(configurations, seed)}
	rng := rand.New(rand.NewSource(seed))

	n := budget(fraction, len(configurations))
	perm := rng.Perm(len(configurations))
	s.order = make([]uint64, n)
	for i := range s.order {
		s.order[i] = uint64(perm[i])
	}
	s.index = s.order[0]
	return s
}

// NewRandomSearchAuto is NewRandomSearch seeded from the wall clock.
func NewRandomSearchAuto(configurations []kernel.Configuration, fraction float64) *RandomSearch {
	return NewRandomSearch(configurations, fraction, time.Now().UnixNano())
}

// NumConfigurations returns the sampling budget.
func (s *RandomSearch) NumConfigurations() uint64 {
	return uint64(len(s.order))
}

// PushExecutionTime records the measurement.
func (s *RandomSearch) PushExecutionTime(t float64) {
	s.record(t, true)
}

// CalculateNextIndex steps to the next sampled configuration.
func (s *RandomSearch) CalculateNextIndex() {
	s.step++
	if s.step < uint64(len(s.order)) {
		s.index = s.order[s.step]
	}
}
