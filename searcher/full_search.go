package searcher

import "github.com/notargets/kerneltuner/kernel"

// FullSearch visits every valid configuration once, in lexicographic
// order. Feedback is recorded for the log but does not steer the search.
type FullSearch struct {
	base
}

// NewFullSearch creates a full-enumeration searcher.
func NewFullSearch(configurations []kernel.Configuration) *FullSearch {
	return &FullSearch{base: newBase(configurations, 0)}
}

// NumConfigurations returns the size of the valid enumeration.
func (s *FullSearch) NumConfigurations() uint64 {
	return uint64(len(s.configurations))
}

// PushExecutionTime records the measurement.
func (s *FullSearch) PushExecutionTime(t float64) {
	s.record(t, true)
}

// CalculateNextIndex steps to the next configuration in order.
func (s *FullSearch) CalculateNextIndex() {
	s.index++
	if s.index >= uint64(len(s.configurations)) {
		s.index = 0
	}
}
