package tuner

import (
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/notargets/kerneltuner/kernel"
)

// Options is the declarative session configuration consumed by the CLI.
// Everything here can also be done programmatically against Tuner.
type Options struct {
	PlatformID int    `yaml:"platform_id"`
	DeviceID   int    `yaml:"device_id"`
	Mode       string `yaml:"mode"`

	Kernel      KernelOptions      `yaml:"kernel"`
	Parameters  []ParameterOptions `yaml:"parameters"`
	Constraints []ConstraintOption `yaml:"constraints"`
	Modifiers   []ModifierOption   `yaml:"modifiers"`
	Arguments   []ArgumentOption   `yaml:"arguments"`
	Reference   *KernelOptions     `yaml:"reference"`

	Search      SearchOptions     `yaml:"search"`
	NumRuns     int               `yaml:"num_runs"`
	L2Threshold float64           `yaml:"l2_threshold"`
	Surrogate   *SurrogateOptions `yaml:"surrogate"`

	Reports ReportOptions `yaml:"reports"`
}

// KernelOptions locates a kernel and its base geometry.
type KernelOptions struct {
	File   string   `yaml:"file"`
	Name   string   `yaml:"name"`
	Global []uint64 `yaml:"global"`
	Local  []uint64 `yaml:"local"`
}

// ParameterOptions declares one tunable parameter.
type ParameterOptions struct {
	Name   string `yaml:"name"`
	Values []int  `yaml:"values"`
}

// ConstraintOption is a binary relation between two parameters, the
// subset of constraint predicates expressible declaratively.
type ConstraintOption struct {
	Left  string `yaml:"left"`
	Op    string `yaml:"op"`
	Right string `yaml:"right"`
}

// ModifierOption rescales launch geometry by parameter values.
// Kind is one of mul_global, div_global, mul_local, div_local.
type ModifierOption struct {
	Kind  string   `yaml:"kind"`
	Names []string `yaml:"names"`
}

// ArgumentOption declares one kernel argument. Kind is input, output, or
// scalar; Type is one of i32, u64, f32, f64; Init is zeros, linear, or
// random (inputs only). Scalars carry Value instead of Size.
type ArgumentOption struct {
	Kind  string  `yaml:"kind"`
	Type  string  `yaml:"type"`
	Size  int     `yaml:"size"`
	Init  string  `yaml:"init"`
	Seed  int64   `yaml:"seed"`
	Value float64 `yaml:"value"`
}

// SearchOptions selects the strategy and its parameters.
type SearchOptions struct {
	Method      string  `yaml:"method"` // full, random, annealing, pso
	Fraction    float64 `yaml:"fraction"`
	Temperature float64 `yaml:"temperature"`
	SwarmSize   int     `yaml:"swarm_size"`
	Inertia     float64 `yaml:"inertia"`
	Cognitive   float64 `yaml:"cognitive"`
	Social      float64 `yaml:"social"`
	Seed        *int64  `yaml:"seed"`
}

// SurrogateOptions enables the post-search surrogate phase.
type SurrogateOptions struct {
	Model              string  `yaml:"model"` // linear_regression
	ValidationFraction float64 `yaml:"validation_fraction"`
	TopK               int     `yaml:"top_k"`
}

// ReportOptions names the output files. Empty entries are skipped.
type ReportOptions struct {
	CSV       string `yaml:"csv"`
	JSON      string `yaml:"json"`
	SearchLog string `yaml:"search_log"`
}

// LoadOptions parses a YAML session file.
func LoadOptions(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not open session file %s: %w", path, err)
	}
	opts := &Options{NumRuns: 1, L2Threshold: DefaultL2Threshold}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	return opts, nil
}

// Apply configures a tuner from the declarative options, returning the
// kernel id.
func (o *Options) Apply(t *Tuner) (int, error) {
	id, err := t.AddKernelFromFile(o.Kernel.File, o.Kernel.Name, o.Kernel.Global, o.Kernel.Local)
	if err != nil {
		return 0, err
	}

	for _, p := range o.Parameters {
		if err := t.AddParameter(id, p.Name, p.Values); err != nil {
			return 0, err
		}
	}
	for _, c := range o.Constraints {
		constraint, err := c.constraint()
		if err != nil {
			return 0, err
		}
		if err := t.AddConstraint(id, constraint); err != nil {
			return 0, err
		}
	}
	for _, m := range o.Modifiers {
		if err := m.apply(t, id); err != nil {
			return 0, err
		}
	}
	for _, a := range o.Arguments {
		if err := a.apply(t); err != nil {
			return 0, err
		}
	}
	if o.Reference != nil {
		if err := t.SetReferenceFromFile(o.Reference.File, o.Reference.Name,
			o.Reference.Global, o.Reference.Local); err != nil {
			return 0, err
		}
	}

	if err := o.Search.apply(t); err != nil {
		return 0, err
	}
	if o.NumRuns > 0 {
		if err := t.SetNumRuns(o.NumRuns); err != nil {
			return 0, err
		}
	}
	if o.L2Threshold > 0 {
		t.SetL2Threshold(o.L2Threshold)
	}
	return id, nil
}

// constraint lowers a declarative relation to a predicate-as-data pair.
func (c ConstraintOption) constraint() (kernel.Constraint, error) {
	var predicate func(v []int) bool
	switch c.Op {
	case "==":
		predicate = func(v []int) bool { return v[0] == v[1] }
	case "!=":
		predicate = func(v []int) bool { return v[0] != v[1] }
	case "<":
		predicate = func(v []int) bool { return v[0] < v[1] }
	case "<=":
		predicate = func(v []int) bool { return v[0] <= v[1] }
	case ">":
		predicate = func(v []int) bool { return v[0] > v[1] }
	case ">=":
		predicate = func(v []int) bool { return v[0] >= v[1] }
	case "divides":
		predicate = func(v []int) bool { return v[0] != 0 && v[1]%v[0] == 0 }
	default:
		return kernel.Constraint{}, fmt.Errorf("%w: unknown constraint operator %q",
			kernel.ErrSchema, c.Op)
	}
	return kernel.Constraint{Names: []string{c.Left, c.Right}, Predicate: predicate}, nil
}

func (m ModifierOption) apply(t *Tuner, id int) error {
	switch m.Kind {
	case "mul_global":
		return t.MulGlobalSize(id, m.Names...)
	case "div_global":
		return t.DivGlobalSize(id, m.Names...)
	case "mul_local":
		return t.MulLocalSize(id, m.Names...)
	case "div_local":
		return t.DivLocalSize(id, m.Names...)
	default:
		return fmt.Errorf("%w: unknown modifier kind %q", kernel.ErrSchema, m.Kind)
	}
}

func (a ArgumentOption) apply(t *Tuner) error {
	if a.Kind == "scalar" {
		switch a.Type {
		case "i32":
			return t.AddArgumentScalar(int32(a.Value))
		case "u64":
			return t.AddArgumentScalar(uint64(a.Value))
		case "f32":
			return t.AddArgumentScalar(float32(a.Value))
		case "f64", "":
			return t.AddArgumentScalar(a.Value)
		default:
			return fmt.Errorf("%w: unsupported scalar type %q", kernel.ErrSchema, a.Type)
		}
	}

	data, err := a.materialize()
	if err != nil {
		return err
	}
	switch a.Kind {
	case "input":
		return t.AddArgumentInput(data)
	case "output":
		return t.AddArgumentOutput(data)
	default:
		return fmt.Errorf("%w: unknown argument kind %q", kernel.ErrSchema, a.Kind)
	}
}

// materialize builds the host data for a buffer argument.
func (a ArgumentOption) materialize() (any, error) {
	if a.Size <= 0 {
		return nil, fmt.Errorf("%w: buffer argument needs a positive size", kernel.ErrSchema)
	}
	rng := rand.New(rand.NewSource(a.Seed))
	fill := func(i int) float64 {
		switch a.Init {
		case "random":
			return rng.Float64()*4.0 - 2.0
		case "linear":
			return float64(i)
		default:
			return 0
		}
	}
	switch a.Type {
	case "i32":
		data := make([]int32, a.Size)
		for i := range data {
			data[i] = int32(fill(i))
		}
		return data, nil
	case "u64":
		data := make([]uint64, a.Size)
		for i := range data {
			data[i] = uint64(fill(i))
		}
		return data, nil
	case "f32":
		data := make([]float32, a.Size)
		for i := range data {
			data[i] = float32(fill(i))
		}
		return data, nil
	case "f64", "":
		data := make([]float64, a.Size)
		for i := range data {
			data[i] = fill(i)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported buffer type %q", kernel.ErrSchema, a.Type)
	}
}

func (s SearchOptions) apply(t *Tuner) error {
	if s.Seed != nil {
		t.SetSeed(*s.Seed)
	}
	switch s.Method {
	case "", "full":
		t.UseFullSearch()
	case "random":
		t.UseRandomSearch(s.Fraction)
	case "annealing":
		t.UseAnnealing(s.Fraction, s.Temperature)
	case "pso":
		t.UsePSO(s.Fraction, s.SwarmSize, s.Inertia, s.Cognitive, s.Social)
	default:
		return fmt.Errorf("%w: unknown search method %q", kernel.ErrSchema, s.Method)
	}
	return nil
}
