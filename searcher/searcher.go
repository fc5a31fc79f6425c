// Package searcher provides the search strategies that walk a kernel's
// configuration space: full enumeration, uniform random sampling,
// simulated annealing, and particle-swarm optimization. All strategies
// expose one contract; the tuning coordinator drives a searcher for
// exactly NumConfigurations iterations.
package searcher

import (
	"fmt"
	"io"
	"math"

	"github.com/notargets/kerneltuner/kernel"
)

// Searcher is the uniform contract over the search strategies. The
// coordinator alternates GetConfiguration / PushExecutionTime /
// CalculateNextIndex, so feedback for iteration i is always observed
// before the configuration for iteration i+1 is produced.
type Searcher interface {
	// NumConfigurations is the exact number of candidates this searcher
	// will emit.
	NumConfigurations() uint64
	// GetConfiguration returns the configuration to evaluate next.
	GetConfiguration() kernel.Configuration
	// PushExecutionTime feeds back the measured time for the current
	// configuration. +Inf means the candidate failed and must be treated
	// as worst-possible.
	PushExecutionTime(t float64)
	// CalculateNextIndex advances to the next configuration.
	CalculateNextIndex()
	// PrintLog emits the per-iteration search trace to a text sink.
	PrintLog(w io.Writer) error
}

// traceRow is one iteration of the search process.
type traceRow struct {
	index    uint64
	time     float64
	accepted bool
	best     float64
}

// base carries the state shared by all strategies: the validated
// enumeration, per-index execution times, and the iteration trace.
type base struct {
	configurations []kernel.Configuration
	executionTimes []float64
	trace          []traceRow
	index          uint64
	bestTime       float64
	seed           int64
}

func newBase(configurations []kernel.Configuration, seed int64) base {
	times := make([]float64, len(configurations))
	for i := range times {
		times[i] = math.Inf(1)
	}
	return base{
		configurations: configurations,
		executionTimes: times,
		bestTime:       math.Inf(1),
		seed:           seed,
	}
}

// record stores feedback for the configuration at the current index.
// +Inf never advances the best.
func (b *base) record(t float64, accepted bool) {
	b.executionTimes[b.index] = t
	if t < b.bestTime {
		b.bestTime = t
	}
	b.trace = append(b.trace, traceRow{
		index:    b.index,
		time:     t,
		accepted: accepted,
		best:     b.bestTime,
	})
}

// GetConfiguration returns the configuration at the current index.
func (b *base) GetConfiguration() kernel.Configuration {
	return b.configurations[b.index]
}

// PrintLog writes the iteration trace: one row per evaluated candidate.
func (b *base) PrintLog(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "seed;%d\n", b.seed); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "step;index;time;accepted;best"); err != nil {
		return err
	}
	for step, row := range b.trace {
		accepted := 0
		if row.accepted {
			accepted = 1
		}
		if _, err := fmt.Fprintf(w, "%d;%d;%s;%d;%s\n",
			step, row.index, formatTime(row.time), accepted, formatTime(row.best)); err != nil {
			return err
		}
	}
	return nil
}

// formatTime renders +Inf as "inf" so failed candidates stay readable in
// the log without disturbing the stored value.
func formatTime(t float64) string {
	if math.IsInf(t, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.3f", t)
}

// budget computes the evaluation budget of a fraction-bounded strategy.
func budget(fraction float64, n int) uint64 {
	b := uint64(math.Ceil(fraction * float64(n)))
	if b < 1 {
		b = 1
	}
	if b > uint64(n) {
		b = uint64(n)
	}
	return b
}
