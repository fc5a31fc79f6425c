// Package tuner is the auto-tuning coordinator. A session has two phases:
// a definition phase (kernels, parameters, constraints, geometry
// modifiers, arguments, strategy selection) and a tuning phase entered by
// Tune, which freezes the schema, enumerates the valid configuration
// space, and drives the selected searcher through the measurement
// pipeline.
package tuner

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/notargets/kerneltuner/device"
	"github.com/notargets/kerneltuner/kernel"
	"github.com/notargets/kerneltuner/logger"
)

// SearchMethod selects the strategy that walks the configuration space.
type SearchMethod int

const (
	SearchFull SearchMethod = iota
	SearchRandom
	SearchAnnealing
	SearchPSO
)

// ModelType selects the surrogate model for ModelPrediction.
type ModelType int

const (
	ModelLinearRegression ModelType = iota
)

// Tuner owns one tuning session: the device, the kernels under test, the
// argument registry, and the accumulated results. It is single-threaded
// and sequential; concurrency lives below the device API boundary.
type Tuner struct {
	dev device.Device
	log logger.Logger

	kernels   []*kernel.Kernel
	reference *kernel.Kernel

	inputs          []*memArgument
	outputs         []*memArgument
	scalars         []scalarArgument
	argumentCounter int

	searchMethod SearchMethod
	searchArgs   []float64
	seed         int64
	hasSeed      bool

	numRuns     int
	l2Threshold float64

	searchLog io.Writer

	results   []Result
	snapshots []snapshot
	frozen    bool
}

// New creates a tuning session on a device. A nil log defaults to the
// plain stderr logger.
func New(dev device.Device, log logger.Logger) *Tuner {
	if log == nil {
		log = logger.Default()
	}
	info := dev.Info()
	log.Info(fmt.Sprintf("Initializing device '%s' (%s)", info.Name, info.Version),
		logger.TagKey, logger.TagInfo)
	return &Tuner{
		dev:          dev,
		log:          log,
		searchMethod: SearchFull,
		numRuns:      1,
		l2Threshold:  DefaultL2Threshold,
	}
}

// SuppressOutput drops all diagnostic output for the rest of the session.
func (t *Tuner) SuppressOutput() {
	t.log = logger.Discard()
}

// Device returns the session's device.
func (t *Tuner) Device() device.Device { return t.dev }

// AddKernel registers a tunable kernel with its base launch geometry and
// returns its id for subsequent parameter and modifier calls.
func (t *Tuner) AddKernel(source, name string, global, local []uint64) (int, error) {
	if t.frozen {
		return 0, fmt.Errorf("%w: kernels cannot be added during the tuning phase", kernel.ErrSchema)
	}
	k, err := kernel.New(name, source, global, local)
	if err != nil {
		return 0, err
	}
	t.kernels = append(t.kernels, k)
	return len(t.kernels) - 1, nil
}

// AddKernelFromFile loads UTF-8 kernel source from a file path.
func (t *Tuner) AddKernelFromFile(path, name string, global, local []uint64) (int, error) {
	source, err := loadFile(path)
	if err != nil {
		return 0, err
	}
	return t.AddKernel(source, name, global, local)
}

// SetReference registers the golden kernel. At most one reference exists
// per session; calling again replaces it.
func (t *Tuner) SetReference(source, name string, global, local []uint64) error {
	if t.frozen {
		return fmt.Errorf("%w: reference cannot be set during the tuning phase", kernel.ErrSchema)
	}
	k, err := kernel.New(name, source, global, local)
	if err != nil {
		return err
	}
	t.reference = k
	return nil
}

// SetReferenceFromFile loads the reference kernel source from a file path.
func (t *Tuner) SetReferenceFromFile(path, name string, global, local []uint64) error {
	source, err := loadFile(path)
	if err != nil {
		return err
	}
	return t.SetReference(source, name, global, local)
}

// AddParameter declares a tunable parameter on a kernel.
func (t *Tuner) AddParameter(id int, name string, values []int) error {
	k, err := t.kernel(id)
	if err != nil {
		return err
	}
	return k.AddParameter(name, values)
}

// AddConstraint registers a validity predicate on a kernel.
func (t *Tuner) AddConstraint(id int, c kernel.Constraint) error {
	k, err := t.kernel(id)
	if err != nil {
		return err
	}
	return k.AddConstraint(c)
}

// SetLocalMemoryUsage registers the local-memory formula of a kernel.
func (t *Tuner) SetLocalMemoryUsage(id int, lm kernel.LocalMemory) error {
	k, err := t.kernel(id)
	if err != nil {
		return err
	}
	return k.SetLocalMemoryUsage(lm)
}

// MulGlobalSize multiplies global axes by parameter values.
func (t *Tuner) MulGlobalSize(id int, names ...string) error {
	k, err := t.kernel(id)
	if err != nil {
		return err
	}
	return k.MulGlobalSize(names...)
}

// DivGlobalSize divides global axes by parameter values.
func (t *Tuner) DivGlobalSize(id int, names ...string) error {
	k, err := t.kernel(id)
	if err != nil {
		return err
	}
	return k.DivGlobalSize(names...)
}

// MulLocalSize multiplies local axes by parameter values.
func (t *Tuner) MulLocalSize(id int, names ...string) error {
	k, err := t.kernel(id)
	if err != nil {
		return err
	}
	return k.MulLocalSize(names...)
}

// DivLocalSize divides local axes by parameter values.
func (t *Tuner) DivLocalSize(id int, names ...string) error {
	k, err := t.kernel(id)
	if err != nil {
		return err
	}
	return k.DivLocalSize(names...)
}

// UseFullSearch selects full enumeration (the default).
func (t *Tuner) UseFullSearch() {
	t.searchMethod = SearchFull
	t.searchArgs = nil
}

// UseRandomSearch selects uniform random sampling of a fraction of the
// space.
func (t *Tuner) UseRandomSearch(fraction float64) {
	t.searchMethod = SearchRandom
	t.searchArgs = []float64{fraction}
}

// UseAnnealing selects simulated annealing with the given fraction budget
// and initial temperature.
func (t *Tuner) UseAnnealing(fraction, temperature float64) {
	t.searchMethod = SearchAnnealing
	t.searchArgs = []float64{fraction, temperature}
}

// UsePSO selects particle-swarm optimization with the given fraction
// budget, swarm size, and (inertia, cognitive, social) coefficients.
func (t *Tuner) UsePSO(fraction float64, swarmSize int, inertia, cognitive, social float64) {
	t.searchMethod = SearchPSO
	t.searchArgs = []float64{fraction, float64(swarmSize), inertia, cognitive, social}
}

// SetSeed fixes the strategy PRNG seed. Without it, stochastic strategies
// seed from the wall clock at construction; either way the seed lands in
// the search log so runs can be reproduced.
func (t *Tuner) SetSeed(seed int64) {
	t.seed = seed
	t.hasSeed = true
}

// SetNumRuns sets how many times each candidate is launched; the reported
// time is the minimum across the repeats.
func (t *Tuner) SetNumRuns(runs int) error {
	if runs < 1 {
		return fmt.Errorf("%w: number of runs must be at least 1", kernel.ErrSchema)
	}
	t.numRuns = runs
	return nil
}

// SetL2Threshold sets the verification tolerance.
func (t *Tuner) SetL2Threshold(threshold float64) {
	t.l2Threshold = threshold
}

// OutputSearchLog directs the per-iteration search trace to a text sink.
func (t *Tuner) OutputSearchLog(w io.Writer) {
	t.searchLog = w
}

// Free releases all device allocations owned by the session.
func (t *Tuner) Free() {
	for _, arg := range t.inputs {
		arg.buffer.Free()
	}
	for _, arg := range t.outputs {
		arg.buffer.Free()
	}
	t.log.Info("End of the tuning process", logger.TagKey, logger.TagInfo)
}

func (t *Tuner) kernel(id int) (*kernel.Kernel, error) {
	if id < 0 || id >= len(t.kernels) {
		return nil, fmt.Errorf("%w: invalid kernel id %d", kernel.ErrSchema, id)
	}
	return t.kernels[id], nil
}

// strategySeed resolves the PRNG seed for one searcher construction.
func (t *Tuner) strategySeed() int64 {
	if t.hasSeed {
		return t.seed
	}
	return time.Now().UnixNano()
}

// loadFile reads a kernel source file.
func loadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("could not open kernel file %s: %w", path, err)
	}
	return string(data), nil
}
