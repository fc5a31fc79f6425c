package tuner

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/notargets/kerneltuner/logger"
)

// PrintToScreen logs every Ok result, then the summary: the best
// verified-correct result separately from the fastest-overall row (which
// may carry a mismatch). Returns the best-Ok time, or 0 if none exists.
func (t *Tuner) PrintToScreen() float64 {
	best, ok := t.BestResult()
	if !ok {
		t.log.Info("No tuner results found", logger.TagKey, logger.TagInfo)
		return 0
	}

	for _, r := range t.results {
		if r.Status == StatusOk {
			t.log.Info(formatResult(r), logger.TagKey, logger.TagResult)
		}
	}
	t.log.Info(formatResult(best), logger.TagKey, logger.TagBest)

	if fastest, ok := t.FastestResult(); ok && fastest.Status == StatusMismatch &&
		fastest.Time < best.Time {
		t.log.Warn("Fastest overall result has mismatching output: "+formatResult(fastest),
			logger.TagKey, logger.TagWarn)
	}
	return best.Time
}

// formatResult renders one result line. Failed results render a dash for
// the time; the stored +Inf sentinel is never modified.
func formatResult(r Result) string {
	time := "-"
	if !r.Failed() {
		time = fmt.Sprintf("%.3f ms", r.Time)
	}
	return fmt.Sprintf("%s; %s; %s", r.KernelName, time, r.Config)
}

// WriteCSV emits one row per result:
// kernel_name, time_ms, threads, status, then one column per parameter.
// A fresh header is written whenever the kernel (and so the parameter
// set) changes. Failed rows are included with an "inf" time.
func (t *Tuner) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'

	lastKernel := ""
	for _, r := range t.results {
		if r.KernelName != lastKernel {
			header := []string{"kernel_name", "time_ms", "threads", "status"}
			for _, s := range r.Config {
				header = append(header, s.Name)
			}
			if err := cw.Write(header); err != nil {
				return err
			}
			lastKernel = r.KernelName
		}

		time := "inf"
		if !r.Failed() {
			time = strconv.FormatFloat(r.Time, 'f', 3, 64)
		}
		row := []string{r.KernelName, time, strconv.FormatUint(r.Threads, 10), r.Status.String()}
		for _, s := range r.Config {
			row = append(row, strconv.Itoa(s.Value))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonReport is the shape of the JSON report.
type jsonReport struct {
	Device  jsonDevice        `json:"device"`
	Kernel  string            `json:"kernel"`
	Results []jsonResult      `json:"results"`
	Meta    map[string]string `json:"meta,omitempty"`
}

type jsonDevice struct {
	Name             string `json:"name"`
	Version          string `json:"version"`
	MaxWorkGroupSize uint64 `json:"max_work_group_size"`
	LocalMemoryBytes uint64 `json:"local_memory_bytes"`
}

type jsonResult struct {
	TimeMs  *float64       `json:"time_ms"`
	Threads uint64         `json:"threads"`
	Status  string         `json:"status"`
	Config  map[string]int `json:"config"`
}

// WriteJSON emits the session report: device description, kernel name,
// all results, and user-supplied metadata. Failed results carry a null
// time since the +Inf sentinel has no JSON representation.
func (t *Tuner) WriteJSON(w io.Writer, meta map[string]string) error {
	info := t.dev.Info()
	report := jsonReport{
		Device: jsonDevice{
			Name:             info.Name,
			Version:          info.Version,
			MaxWorkGroupSize: info.MaxWorkGroupSize,
			LocalMemoryBytes: info.LocalMemoryBytes,
		},
		Kernel: t.kernelNames(),
		Meta:   meta,
	}
	for _, r := range t.results {
		jr := jsonResult{
			Threads: r.Threads,
			Status:  r.Status.String(),
			Config:  make(map[string]int, len(r.Config)),
		}
		if !r.Failed() {
			time := r.Time
			jr.TimeMs = &time
		}
		for _, s := range r.Config {
			jr.Config[s.Name] = s.Value
		}
		report.Results = append(report.Results, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func (t *Tuner) kernelNames() string {
	names := make([]string, len(t.kernels))
	for i, k := range t.kernels {
		names[i] = k.Name()
	}
	return strings.Join(names, ",")
}
