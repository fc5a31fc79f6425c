package tuner

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/kerneltuner/device"
)

const sessionYAML = `
mode: Serial
kernel:
  file: %s
  name: scale
  global: [16]
  local: [4]
parameters:
  - name: A
    values: [1, 2, 4]
  - name: B
    values: [1, 2, 4]
constraints:
  - left: A
    op: "<="
    right: B
arguments:
  - kind: scalar
    type: i32
    value: 16
  - kind: input
    type: f32
    size: 16
    init: linear
  - kind: output
    type: f32
    size: 16
search:
  method: random
  fraction: 0.5
  seed: 42
num_runs: 2
l2_threshold: 0.001
`

func writeSession(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	kernelPath := filepath.Join(dir, "scale.okl")
	require.NoError(t, os.WriteFile(kernelPath, []byte("kernel source"), 0o644))

	sessionPath := filepath.Join(dir, "session.yaml")
	require.NoError(t, os.WriteFile(sessionPath,
		[]byte(fmt.Sprintf(sessionYAML, kernelPath)), 0o644))
	return sessionPath
}

func TestLoadOptions(t *testing.T) {
	opts, err := LoadOptions(writeSession(t))
	require.NoError(t, err)

	assert.Equal(t, "Serial", opts.Mode)
	assert.Equal(t, "scale", opts.Kernel.Name)
	assert.Equal(t, []uint64{16}, opts.Kernel.Global)
	assert.Len(t, opts.Parameters, 2)
	assert.Equal(t, "random", opts.Search.Method)
	require.NotNil(t, opts.Search.Seed)
	assert.Equal(t, int64(42), *opts.Search.Seed)
	assert.Equal(t, 2, opts.NumRuns)
	assert.InDelta(t, 0.001, opts.L2Threshold, 1e-12)
}

func TestOptionsApply(t *testing.T) {
	opts, err := LoadOptions(writeSession(t))
	require.NoError(t, err)

	dev := device.NewMock()
	tu := newTestTuner(dev)
	_, err = opts.Apply(tu)
	require.NoError(t, err)

	require.NoError(t, tu.Tune())

	// fraction 0.5 of the 6 constrained configurations
	assert.Len(t, tu.Results(), 3)
	for _, r := range tu.Results() {
		a, _ := r.Config.Value("A")
		b, _ := r.Config.Value("B")
		assert.LessOrEqual(t, a, b)
	}
	// num_runs 2 per candidate
	assert.Len(t, dev.Launches, 6)
}

func TestConstraintOperators(t *testing.T) {
	tests := []struct {
		op       string
		values   []int
		expected bool
	}{
		{"==", []int{2, 2}, true},
		{"!=", []int{2, 2}, false},
		{"<", []int{1, 2}, true},
		{"<=", []int{2, 2}, true},
		{">", []int{1, 2}, false},
		{">=", []int{3, 2}, true},
		{"divides", []int{2, 6}, true},
		{"divides", []int{4, 6}, false},
	}
	for _, tt := range tests {
		c, err := ConstraintOption{Left: "A", Op: tt.op, Right: "B"}.constraint()
		require.NoError(t, err)
		assert.Equal(t, tt.expected, c.Predicate(tt.values), "op %s %v", tt.op, tt.values)
	}

	_, err := ConstraintOption{Left: "A", Op: "??", Right: "B"}.constraint()
	assert.Error(t, err)
}
