package tuner

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/kerneltuner/device"
	"github.com/notargets/kerneltuner/kernel"
	"github.com/notargets/kerneltuner/logger"
	"github.com/notargets/kerneltuner/mlmodels"
	"github.com/notargets/kerneltuner/searcher"
)

// Tune runs the session: the reference first (once, snapshotting its
// outputs), then every registered kernel through its searcher. Hard
// errors (schema, empty enumeration) abort with no results; per-candidate
// failures are absorbed as Failed results and the search continues.
func (t *Tuner) Tune() error {
	t.frozen = true
	info := t.dev.Info()

	if t.reference != nil {
		t.log.Info("Testing reference "+t.reference.Name(), logger.TagKey, logger.TagInfo)
		result := t.runCandidate(t.reference, nil, 0, 1)
		if result.Status == StatusFailed {
			return fmt.Errorf("reference kernel %s failed", t.reference.Name())
		}
		if err := t.storeReferenceOutput(); err != nil {
			return fmt.Errorf("failed to snapshot reference output: %w", err)
		}
	}

	// Enumerate every kernel before measuring any, so an empty enumeration
	// aborts before results are recorded
	for _, k := range t.kernels {
		if err := k.SetConfigurations(info); err != nil {
			return err
		}
	}

	for _, k := range t.kernels {
		t.log.Info("Testing kernel "+k.Name(), logger.TagKey, logger.TagInfo)

		search, err := t.newSearcher(k)
		if err != nil {
			return err
		}

		total := search.NumConfigurations()
		for i := uint64(0); i < total; i++ {
			config := search.GetConfiguration()

			result := t.runCandidate(k, config, i, total)
			if result.Status != StatusFailed {
				status, verr := t.verifyOutput()
				if verr != nil {
					t.log.Warn("verification failed: "+verr.Error(), logger.TagKey, logger.TagWarn)
					status = StatusMismatch
				}
				result.Status = status
			}

			search.PushExecutionTime(result.Time)
			search.CalculateNextIndex()

			t.record(result)
		}

		if t.searchLog != nil {
			if err := search.PrintLog(t.searchLog); err != nil {
				return fmt.Errorf("failed to write search log: %w", err)
			}
		}
	}
	return nil
}

// record appends a result and logs its status line.
func (t *Tuner) record(r Result) {
	t.results = append(t.results, r)
	switch r.Status {
	case StatusFailed:
		t.log.Warn(r.KernelName+" "+r.Config.String(), logger.TagKey, logger.TagFailed)
	case StatusMismatch:
		t.log.Warn(fmt.Sprintf("%s %s (%.3f ms)", r.KernelName, r.Config, r.Time),
			logger.TagKey, logger.TagWarn)
	}
}

// runCandidate is the measurement pipeline for one configuration: source
// assembly, compilation, geometry, local-memory precheck, binding, output
// reset, the timed launch loop, and timing reduction. Every failure path
// becomes a Failed result with the +Inf sentinel; nothing aborts the
// search.
func (t *Tuner) runCandidate(k *kernel.Kernel, config kernel.Configuration,
	id, total uint64) Result {

	result := Result{
		KernelName: k.Name(),
		Config:     config,
		Time:       math.Inf(1),
		Status:     StatusFailed,
	}
	fail := func(stage string, err error) Result {
		t.log.Warn(fmt.Sprintf("Kernel %s failed: %s: %v", k.Name(), stage, err),
			logger.TagKey, logger.TagFailed)
		return result
	}

	source := config.Define() + k.Source()

	prog, build := t.dev.Compile(source, k.Name())
	if build.Log != "" {
		t.log.Debug("compiler log: " + build.Log)
	}
	if build.Status != device.BuildSuccess {
		return fail("compile", fmt.Errorf("%s", build.Status))
	}
	defer prog.Free()

	global, local, err := k.ComputeRanges(config)
	if err != nil {
		return fail("geometry", err)
	}
	info := t.dev.Info()
	threads, err := info.VerifyThreadSizes(global, local)
	if err != nil {
		return fail("geometry", err)
	}

	localMem, err := prog.LocalMemUsage()
	if err != nil {
		return fail("local-memory query", err)
	}
	if !info.LocalMemoryValid(localMem) {
		return fail("local memory", fmt.Errorf("kernel uses %d bytes, device has %d",
			localMem, info.LocalMemoryBytes))
	}

	if err := t.bind(prog); err != nil {
		return fail("argument binding", err)
	}
	if err := t.resetOutputs(); err != nil {
		return fail("output reset", err)
	}
	if err := t.dev.Finish(); err != nil {
		return fail("queue synchronization", err)
	}

	t.log.Info(fmt.Sprintf("Running %s", k.Name()), logger.TagKey, logger.TagRun)
	elapsed := math.Inf(1)
	for run := 0; run < t.numRuns; run++ {
		ms, err := prog.Launch(global, local)
		if err != nil {
			return fail("launch", err)
		}
		elapsed = math.Min(elapsed, ms)
	}
	if err := t.dev.Finish(); err != nil {
		return fail("queue synchronization", err)
	}

	t.log.Info(fmt.Sprintf("Completed %s (%.3f ms) - %d out of %d",
		k.Name(), elapsed, id+1, total), logger.TagKey, logger.TagOK)

	result.Time = elapsed
	result.Threads = threads
	result.Status = StatusOk
	return result
}

// newSearcher builds the selected strategy over a kernel's enumeration.
func (t *Tuner) newSearcher(k *kernel.Kernel) (searcher.Searcher, error) {
	configurations := k.Configurations()
	switch t.searchMethod {
	case SearchFull:
		return searcher.NewFullSearch(configurations), nil
	case SearchRandom:
		if len(t.searchArgs) != 1 {
			return nil, fmt.Errorf("%w: random search expects (fraction)", kernel.ErrSchema)
		}
		return searcher.NewRandomSearch(configurations, t.searchArgs[0], t.strategySeed()), nil
	case SearchAnnealing:
		if len(t.searchArgs) != 2 {
			return nil, fmt.Errorf("%w: annealing expects (fraction, temperature)", kernel.ErrSchema)
		}
		return searcher.NewAnnealing(configurations, k.Parameters(),
			t.searchArgs[0], t.searchArgs[1], t.strategySeed()), nil
	case SearchPSO:
		if len(t.searchArgs) != 5 {
			return nil, fmt.Errorf("%w: PSO expects (fraction, swarm, inertia, cognitive, social)",
				kernel.ErrSchema)
		}
		return searcher.NewPSO(configurations, k.Parameters(), t.searchArgs[0],
			int(t.searchArgs[1]), t.searchArgs[2], t.searchArgs[3], t.searchArgs[4],
			t.strategySeed()), nil
	default:
		return nil, fmt.Errorf("%w: unknown search method %d", kernel.ErrSchema, t.searchMethod)
	}
}

// ModelPrediction trains a surrogate on the measured results, predicts
// the runtime of every configuration in the valid enumeration, and
// re-measures the top-K predictions on the device. Runs after Tune.
func (t *Tuner) ModelPrediction(model ModelType, validationFraction float64, topK int) error {
	if !t.frozen {
		return fmt.Errorf("%w: ModelPrediction requires a completed Tune", kernel.ErrSchema)
	}
	if model != ModelLinearRegression {
		return fmt.Errorf("%w: unknown model type %d", kernel.ErrSchema, model)
	}
	if validationFraction < 0 || validationFraction >= 1 {
		return fmt.Errorf("%w: validation fraction %f outside [0,1)", kernel.ErrSchema,
			validationFraction)
	}

	for _, k := range t.kernels {
		if err := t.modelKernel(k, validationFraction, topK); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tuner) modelKernel(k *kernel.Kernel, validationFraction float64, topK int) error {
	// Measured samples, in search order; failures carry no signal
	type sample struct {
		x []float64
		y float64
	}
	var samples []sample
	measured := make(map[string]float64)
	for _, r := range t.results {
		if r.KernelName != k.Name() || r.Failed() {
			continue
		}
		x := make([]float64, len(r.Config))
		for i, v := range r.Config.Values() {
			x[i] = float64(v)
		}
		samples = append(samples, sample{x: x, y: r.Time})
		measured[r.Config.String()] = r.Time
	}
	if len(samples) < 2 {
		return fmt.Errorf("not enough measured samples to train a model for %s", k.Name())
	}

	// Split reflects search-order statistics: no shuffling
	validationSamples := int(float64(len(samples)) * validationFraction)
	trainingSamples := len(samples) - validationSamples

	xTrain := make([][]float64, trainingSamples)
	yTrain := make([]float64, trainingSamples)
	for i := 0; i < trainingSamples; i++ {
		xTrain[i], yTrain[i] = samples[i].x, samples[i].y
	}

	t.log.Info("Training a linear regression model", logger.TagKey, logger.TagInfo)
	lr := mlmodels.NewLinearRegression()
	if err := lr.Train(xTrain, yTrain); err != nil {
		return fmt.Errorf("surrogate training failed: %w", err)
	}

	if validationSamples > 0 {
		xVal := make([][]float64, validationSamples)
		yVal := make([]float64, validationSamples)
		for i := 0; i < validationSamples; i++ {
			xVal[i], yVal[i] = samples[trainingSamples+i].x, samples[trainingSamples+i].y
		}
		cost, err := lr.Validate(xVal, yVal)
		if err != nil {
			return fmt.Errorf("surrogate validation failed: %w", err)
		}
		t.log.Info(fmt.Sprintf("Validation mean-squared error: %.6f", cost),
			logger.TagKey, logger.TagResult)
	}

	// Predict every configuration; measurements replace predictions for
	// reporting but the ranking uses the model throughout
	t.log.Info("Predicting the remaining configurations using the model",
		logger.TagKey, logger.TagInfo)
	type prediction struct {
		index     int
		predicted float64
		reported  float64
	}
	configurations := k.Configurations()
	predictions := make([]prediction, len(configurations))
	for i, c := range configurations {
		x := make([]float64, len(c))
		for j, v := range c.Values() {
			x[j] = float64(v)
		}
		p, err := lr.Predict(x)
		if err != nil {
			return err
		}
		reported := p
		if time, ok := measured[c.String()]; ok {
			reported = time
		}
		predictions[i] = prediction{index: i, predicted: p, reported: reported}
	}
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].predicted < predictions[j].predicted
	})

	// Re-measure the best predictions on the device
	t.log.Info("Testing the best-found configurations", logger.TagKey, logger.TagInfo)
	for i := 0; i < topK && i < len(predictions); i++ {
		p := predictions[i]
		t.log.Info(fmt.Sprintf("The model predicted: %.3f ms", p.predicted),
			logger.TagKey, logger.TagInfo)
		if p.reported != p.predicted {
			t.log.Debug(fmt.Sprintf("already measured at %.3f ms", p.reported))
		}
		config := configurations[p.index]

		result := t.runCandidate(k, config, uint64(i), uint64(topK))
		if result.Status != StatusFailed {
			status, err := t.verifyOutput()
			if err != nil {
				return err
			}
			result.Status = status
		}
		t.record(result)
	}
	return nil
}

// logMismatch surfaces a verification failure to the diagnostic sink.
func (t *Tuner) logMismatch(index int, norm float64) {
	t.log.Warn(fmt.Sprintf("Results differ on argument %d: L2 norm is %6.2e", index, norm),
		logger.TagKey, logger.TagWarn)
}
