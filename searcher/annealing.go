package searcher

import (
	"math"
	"math/rand"
	"time"

	"github.com/notargets/kerneltuner/kernel"
)

// maxNeighbourDraws bounds the redraws when a proposed neighbour falls
// outside the valid enumeration. On exhaustion the walk stays in place.
const maxNeighbourDraws = 100

// Annealing walks the configuration space with Metropolis acceptance
// under a linearly decaying temperature schedule.
type Annealing struct {
	base
	parameters []kernel.Parameter
	rng        *rand.Rand

	fraction     float64
	temperature0 float64
	evaluations  uint64
	step         uint64

	currentIndex uint64
	currentTime  float64
	indexOf      map[string]uint64
}

// NewAnnealing creates a simulated-annealing searcher with an evaluation
// budget of ceil(fraction*N) and initial temperature temperature0.
func NewAnnealing(configurations []kernel.Configuration, parameters []kernel.Parameter,
	fraction, temperature0 float64, seed int64) *Annealing {

	s := &Annealing{
		base:         newBase(configurations, seed),
		parameters:   parameters,
		rng:          rand.New(rand.NewSource(seed)),
		fraction:     fraction,
		temperature0: temperature0,
		evaluations:  budget(fraction, len(configurations)),
		currentTime:  math.Inf(1),
		indexOf:      make(map[string]uint64, len(configurations)),
	}
	for i, c := range configurations {
		s.indexOf[c.String()] = uint64(i)
	}
	s.index = uint64(s.rng.Intn(len(configurations)))
	s.currentIndex = s.index
	return s
}

// NewAnnealingAuto is NewAnnealing seeded from the wall clock.
func NewAnnealingAuto(configurations []kernel.Configuration, parameters []kernel.Parameter,
	fraction, temperature0 float64) *Annealing {
	return NewAnnealing(configurations, parameters, fraction, temperature0, time.Now().UnixNano())
}

// NumConfigurations returns the evaluation budget.
func (s *Annealing) NumConfigurations() uint64 {
	return s.evaluations
}

// PushExecutionTime applies the Metropolis acceptance rule to the
// candidate at the current index. A failed candidate (+Inf) is always
// rejected.
func (s *Annealing) PushExecutionTime(t float64) {
	accepted := false
	switch {
	case math.IsInf(t, 1):
		// rejected
	case t < s.currentTime:
		accepted = true
	default:
		temperature := s.temperature()
		if temperature > 0 {
			probability := math.Exp((s.currentTime - t) / temperature)
			accepted = s.rng.Float64() < probability
		}
	}
	if accepted {
		s.currentIndex = s.index
		s.currentTime = t
	}
	s.record(t, accepted)
}

// temperature evaluates the linear schedule at the current step.
func (s *Annealing) temperature() float64 {
	return s.temperature0 * (1.0 - float64(s.step)/float64(s.evaluations))
}

// CalculateNextIndex proposes a neighbour of the accepted state: one
// parameter re-drawn to a different value from its list. Proposals outside
// the valid enumeration are redrawn a bounded number of times; on
// exhaustion the walk stays.
func (s *Annealing) CalculateNextIndex() {
	s.step++
	current := s.configurations[s.currentIndex]

	for draw := 0; draw < maxNeighbourDraws; draw++ {
		d := s.rng.Intn(len(s.parameters))
		p := s.parameters[d]
		if len(p.Values) < 2 {
			continue
		}
		currentValue, _ := current.Value(p.Name)

		// Uniform over the other values of the list
		value := p.Values[s.rng.Intn(len(p.Values))]
		if value == currentValue {
			continue
		}

		neighbour := append(kernel.Configuration(nil), current...)
		neighbour[d] = kernel.Setting{Name: p.Name, Value: value}
		if idx, ok := s.indexOf[neighbour.String()]; ok {
			s.index = idx
			return
		}
	}
	s.index = s.currentIndex
}
