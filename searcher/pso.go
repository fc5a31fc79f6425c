package searcher

import (
	"math"
	"math/rand"
	"time"

	"github.com/notargets/kerneltuner/kernel"
)

// particle is one member of the swarm. Positions and velocities live in
// parameter-value-index space, so every coordinate is an index into that
// parameter's value list.
type particle struct {
	position []int
	velocity []float64
	bestPos  []int
	bestTime float64
}

// PSO explores the configuration space with a particle swarm. The
// evaluation budget is spread round-robin across the swarm.
type PSO struct {
	base
	parameters []kernel.Parameter
	rng        *rand.Rand

	evaluations   uint64
	step          uint64
	inertia       float64
	cognitive     float64
	social        float64
	swarm         []particle
	current       int
	globalBestPos []int
	globalBest    float64

	indexOf   map[string]uint64
	indexVecs [][]int
}

// NewPSO creates a particle-swarm searcher with swarmSize particles and
// coefficients (inertia, cognitive, social).
func NewPSO(configurations []kernel.Configuration, parameters []kernel.Parameter,
	fraction float64, swarmSize int, inertia, cognitive, social float64, seed int64) *PSO {

	if swarmSize < 1 {
		swarmSize = 1
	}
	s := &PSO{
		base:        newBase(configurations, seed),
		parameters:  parameters,
		rng:         rand.New(rand.NewSource(seed)),
		evaluations: budget(fraction, len(configurations)),
		inertia:     inertia,
		cognitive:   cognitive,
		social:      social,
		globalBest:  math.Inf(1),
		indexOf:     make(map[string]uint64, len(configurations)),
		indexVecs:   make([][]int, len(configurations)),
	}
	for i, c := range configurations {
		s.indexOf[c.String()] = uint64(i)
		s.indexVecs[i] = s.toIndexVector(c)
	}

	s.swarm = make([]particle, swarmSize)
	for i := range s.swarm {
		start := s.indexVecs[s.rng.Intn(len(configurations))]
		s.swarm[i] = particle{
			position: append([]int(nil), start...),
			velocity: make([]float64, len(parameters)),
			bestPos:  append([]int(nil), start...),
			bestTime: math.Inf(1),
		}
	}
	s.globalBestPos = append([]int(nil), s.swarm[0].position...)
	s.index = s.configIndex(s.swarm[0].position)
	return s
}

// NewPSOAuto is NewPSO seeded from the wall clock.
func NewPSOAuto(configurations []kernel.Configuration, parameters []kernel.Parameter,
	fraction float64, swarmSize int, inertia, cognitive, social float64) *PSO {
	return NewPSO(configurations, parameters, fraction, swarmSize,
		inertia, cognitive, social, time.Now().UnixNano())
}

// NumConfigurations returns the evaluation budget.
func (s *PSO) NumConfigurations() uint64 {
	return s.evaluations
}

// PushExecutionTime updates the current particle's personal best and the
// swarm's global best. +Inf never advances either.
func (s *PSO) PushExecutionTime(t float64) {
	p := &s.swarm[s.current]
	accepted := false
	if t < p.bestTime {
		p.bestTime = t
		copy(p.bestPos, p.position)
		accepted = true
	}
	if t < s.globalBest {
		s.globalBest = t
		copy(s.globalBestPos, p.position)
	}
	s.record(t, accepted)
}

// CalculateNextIndex moves to the next particle in round-robin order and
// advances its position with the velocity update rule.
func (s *PSO) CalculateNextIndex() {
	s.step++
	s.current = int(s.step) % len(s.swarm)
	p := &s.swarm[s.current]

	for d := range s.parameters {
		r1 := s.rng.Float64()
		r2 := s.rng.Float64()
		p.velocity[d] = s.inertia*p.velocity[d] +
			s.cognitive*r1*float64(p.bestPos[d]-p.position[d]) +
			s.social*r2*float64(s.globalBestPos[d]-p.position[d])

		next := p.position[d] + int(math.Round(p.velocity[d]))
		if limit := len(s.parameters[d].Values) - 1; next > limit {
			next = limit
		}
		if next < 0 {
			next = 0
		}
		p.position[d] = next
	}

	// Project invalid positions onto the valid enumeration
	if _, ok := s.lookup(p.position); !ok {
		p.position = s.nearestValid(p.position)
	}
	s.index = s.configIndex(p.position)
}

// toIndexVector maps a configuration to value-list indices.
func (s *PSO) toIndexVector(c kernel.Configuration) []int {
	vec := make([]int, len(s.parameters))
	for d, p := range s.parameters {
		value, _ := c.Value(p.Name)
		for i, v := range p.Values {
			if v == value {
				vec[d] = i
				break
			}
		}
	}
	return vec
}

// lookup finds the enumeration index of an index-vector position.
func (s *PSO) lookup(position []int) (uint64, bool) {
	c := make(kernel.Configuration, len(s.parameters))
	for d, p := range s.parameters {
		c[d] = kernel.Setting{Name: p.Name, Value: p.Values[position[d]]}
	}
	idx, ok := s.indexOf[c.String()]
	return idx, ok
}

func (s *PSO) configIndex(position []int) uint64 {
	idx, ok := s.lookup(position)
	if !ok {
		// nearestValid guarantees validity; fall back to a resample in
		// case the swarm was constructed degenerate.
		idx = uint64(s.rng.Intn(len(s.configurations)))
	}
	return idx
}

// nearestValid projects a position onto the closest valid configuration
// by L1 distance in index space; the lexicographically first wins on ties.
// If the projection finds nothing (cannot happen with a non-empty
// enumeration) the position is resampled uniformly.
func (s *PSO) nearestValid(position []int) []int {
	bestDist := math.MaxInt
	best := -1
	for i, vec := range s.indexVecs {
		dist := 0
		for d := range vec {
			delta := vec[d] - position[d]
			if delta < 0 {
				delta = -delta
			}
			dist += delta
		}
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	if best < 0 {
		best = s.rng.Intn(len(s.configurations))
	}
	return append([]int(nil), s.indexVecs[best]...)
}
