package tuner

import (
	"math"

	"github.com/notargets/kerneltuner/kernel"
)

// Status classifies one tuning result.
type Status int

const (
	// StatusOk means the candidate ran and its output matched the
	// reference (or no reference was configured).
	StatusOk Status = iota
	// StatusMismatch means the candidate ran but its output differed from
	// the reference. The measured time is retained.
	StatusMismatch
	// StatusFailed means the candidate never produced a timing: compile
	// error, invalid binary, geometry violation, local-memory overflow,
	// or launch failure. Time is +Inf.
	StatusFailed
)

// String returns the report name of a status.
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusMismatch:
		return "mismatch"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of measuring one configuration. Failed results
// keep the +Inf sentinel in Time; formatting renders it separately and
// never mutates the stored value.
type Result struct {
	KernelName string
	Config     kernel.Configuration
	Time       float64
	Threads    uint64
	Status     Status
}

// Failed reports whether the result carries the +Inf sentinel.
func (r Result) Failed() bool {
	return math.IsInf(r.Time, 1)
}

// Results returns every recorded tuning result in measurement order.
func (t *Tuner) Results() []Result {
	return t.results
}

// BestResult returns the fastest result with verified-correct output.
func (t *Tuner) BestResult() (Result, bool) {
	return bestOf(t.results, func(r Result) bool { return r.Status == StatusOk })
}

// FastestResult returns the fastest result overall, which may carry a
// Mismatch status.
func (t *Tuner) FastestResult() (Result, bool) {
	return bestOf(t.results, func(r Result) bool { return r.Status != StatusFailed })
}

func bestOf(results []Result, keep func(Result) bool) (Result, bool) {
	best := Result{Time: math.Inf(1)}
	found := false
	for _, r := range results {
		if keep(r) && r.Time <= best.Time && !r.Failed() {
			best = r
			found = true
		}
	}
	return best, found
}
