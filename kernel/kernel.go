package kernel

import (
	"fmt"

	"github.com/notargets/kerneltuner/device"
)

// ModifierKind selects which launch range a geometry modifier rescales.
type ModifierKind int

const (
	GlobalMul ModifierKind = iota
	GlobalDiv
	LocalMul
	LocalDiv
)

// Modifier rescales one launch range by parameter values, one name per
// axis. An empty name leaves that axis untouched. Modifiers apply
// left-to-right in the order they were added.
type Modifier struct {
	Kind  ModifierKind
	Names []string
}

// Kernel bundles everything the tuner needs to measure one kernel: source
// text, entry-point name, base launch geometry, geometry modifiers, the
// local-memory formula, and the tunable parameter schema.
type Kernel struct {
	name       string
	source     string
	globalBase []uint64
	localBase  []uint64

	parameters  []Parameter
	constraints []Constraint
	modifiers   []Modifier
	localMemory *LocalMemory

	configurations []Configuration
	frozen         bool
}

// New creates a kernel descriptor with its base launch geometry.
func New(name, source string, global, local []uint64) (*Kernel, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: kernel name is empty", ErrSchema)
	}
	if len(global) == 0 || len(global) > 3 {
		return nil, fmt.Errorf("%w: global size must have 1 to 3 axes, got %d",
			ErrSchema, len(global))
	}
	if len(local) != len(global) {
		return nil, fmt.Errorf("%w: local size has %d axes but global has %d",
			ErrSchema, len(local), len(global))
	}
	return &Kernel{
		name:       name,
		source:     source,
		globalBase: append([]uint64(nil), global...),
		localBase:  append([]uint64(nil), local...),
	}, nil
}

// Name returns the kernel's entry-point name.
func (k *Kernel) Name() string { return k.name }

// Source returns the kernel's source text.
func (k *Kernel) Source() string { return k.source }

// Parameters returns the declared parameters in declaration order.
func (k *Kernel) Parameters() []Parameter { return k.parameters }

// ParameterExists reports whether a parameter name is declared.
func (k *Kernel) ParameterExists(name string) bool {
	for _, p := range k.parameters {
		if p.Name == name {
			return true
		}
	}
	return false
}

// AddParameter declares a tunable parameter. Names are unique within a
// kernel and value lists must be non-empty.
func (k *Kernel) AddParameter(name string, values []int) error {
	if k.frozen {
		return fmt.Errorf("%w: schema is frozen after enumeration", ErrSchema)
	}
	if name == "" {
		return fmt.Errorf("%w: parameter name is empty", ErrSchema)
	}
	if len(values) == 0 {
		return fmt.Errorf("%w: parameter %s has an empty value list", ErrSchema, name)
	}
	if k.ParameterExists(name) {
		return fmt.Errorf("%w: parameter %s already exists", ErrSchema, name)
	}
	k.parameters = append(k.parameters, Parameter{
		Name:   name,
		Values: append([]int(nil), values...),
	})
	return nil
}

// AddConstraint registers a validity predicate. Every referenced parameter
// must already be declared.
func (k *Kernel) AddConstraint(c Constraint) error {
	if k.frozen {
		return fmt.Errorf("%w: schema is frozen after enumeration", ErrSchema)
	}
	if c.Predicate == nil {
		return fmt.Errorf("%w: constraint has no predicate", ErrSchema)
	}
	for _, name := range c.Names {
		if !k.ParameterExists(name) {
			return fmt.Errorf("%w: constraint references undeclared parameter %s",
				ErrSchema, name)
		}
	}
	k.constraints = append(k.constraints, c)
	return nil
}

// SetLocalMemoryUsage registers the local-memory formula. Configurations
// whose formula exceeds the device budget are pruned at enumeration time.
func (k *Kernel) SetLocalMemoryUsage(lm LocalMemory) error {
	if k.frozen {
		return fmt.Errorf("%w: schema is frozen after enumeration", ErrSchema)
	}
	if lm.Eval == nil {
		return fmt.Errorf("%w: local-memory formula has no evaluator", ErrSchema)
	}
	for _, name := range lm.Names {
		if !k.ParameterExists(name) {
			return fmt.Errorf("%w: local-memory formula references undeclared parameter %s",
				ErrSchema, name)
		}
	}
	k.localMemory = &lm
	return nil
}

// MulGlobalSize multiplies global axes by parameter values.
func (k *Kernel) MulGlobalSize(names ...string) error {
	return k.addModifier(GlobalMul, names)
}

// DivGlobalSize divides global axes by parameter values. Division must be
// exact; configurations violating this are pruned at enumeration time.
func (k *Kernel) DivGlobalSize(names ...string) error {
	return k.addModifier(GlobalDiv, names)
}

// MulLocalSize multiplies local axes by parameter values.
func (k *Kernel) MulLocalSize(names ...string) error {
	return k.addModifier(LocalMul, names)
}

// DivLocalSize divides local axes by parameter values.
func (k *Kernel) DivLocalSize(names ...string) error {
	return k.addModifier(LocalDiv, names)
}

func (k *Kernel) addModifier(kind ModifierKind, names []string) error {
	if k.frozen {
		return fmt.Errorf("%w: schema is frozen after enumeration", ErrSchema)
	}
	if len(names) == 0 || len(names) > len(k.globalBase) {
		return fmt.Errorf("%w: modifier names %v do not fit %d axes",
			ErrSchema, names, len(k.globalBase))
	}
	for _, name := range names {
		if name != "" && !k.ParameterExists(name) {
			return fmt.Errorf("%w: modifier references undeclared parameter %s",
				ErrSchema, name)
		}
	}
	k.modifiers = append(k.modifiers, Modifier{
		Kind:  kind,
		Names: append([]string(nil), names...),
	})
	return nil
}

// ComputeRanges applies the modifiers left-to-right to the base geometry
// and returns the concrete launch ranges for one configuration. Inexact
// division is an error; the configuration is invalid, not the schema.
func (k *Kernel) ComputeRanges(c Configuration) (global, local []uint64, err error) {
	global = append([]uint64(nil), k.globalBase...)
	local = append([]uint64(nil), k.localBase...)

	for _, m := range k.modifiers {
		var target []uint64
		switch m.Kind {
		case GlobalMul, GlobalDiv:
			target = global
		default:
			target = local
		}
		for axis, name := range m.Names {
			if name == "" {
				continue
			}
			value, ok := c.Value(name)
			if !ok {
				return nil, nil, fmt.Errorf("configuration does not bind parameter %s", name)
			}
			if value <= 0 {
				return nil, nil, fmt.Errorf("parameter %s has non-positive value %d", name, value)
			}
			v := uint64(value)
			switch m.Kind {
			case GlobalMul, LocalMul:
				target[axis] *= v
			case GlobalDiv, LocalDiv:
				if target[axis]%v != 0 {
					return nil, nil, fmt.Errorf("size %d not divisible by %s=%d on axis %d",
						target[axis], name, value, axis)
				}
				target[axis] /= v
			}
		}
	}
	return global, local, nil
}

// LocalMemoryUsage evaluates the local-memory formula for a configuration,
// or 0 if no formula is set.
func (k *Kernel) LocalMemoryUsage(c Configuration) uint64 {
	if k.localMemory == nil {
		return 0
	}
	return k.localMemory.Eval(c.values(k.localMemory.Names))
}

// valid evaluates the constraints in declaration order, short-circuiting
// on the first failure.
func (k *Kernel) valid(c Configuration) bool {
	for _, constraint := range k.constraints {
		if !constraint.Predicate(c.values(constraint.Names)) {
			return false
		}
	}
	return true
}

// SetConfigurations materializes the lexicographic cartesian product of
// the parameter value lists, filters it by the constraints, and prunes
// configurations whose geometry or local-memory demand cannot run on the
// device. The first call freezes the schema; the result is deterministic
// and stable across runs.
func (k *Kernel) SetConfigurations(info device.Info) error {
	if k.frozen {
		return nil
	}
	k.frozen = true

	k.configurations = k.configurations[:0]
	current := make(Configuration, len(k.parameters))
	k.enumerate(info, current, 0)

	if len(k.configurations) == 0 {
		return fmt.Errorf("%w for kernel %s", ErrNoConfigurations, k.name)
	}
	return nil
}

func (k *Kernel) enumerate(info device.Info, current Configuration, depth int) {
	if depth == len(k.parameters) {
		c := append(Configuration(nil), current...)
		if !k.valid(c) {
			return
		}
		global, local, err := k.ComputeRanges(c)
		if err != nil {
			return
		}
		if _, err := info.VerifyThreadSizes(global, local); err != nil {
			return
		}
		if !info.LocalMemoryValid(k.LocalMemoryUsage(c)) {
			return
		}
		k.configurations = append(k.configurations, c)
		return
	}
	p := k.parameters[depth]
	for _, value := range p.Values {
		current[depth] = Setting{Name: p.Name, Value: value}
		k.enumerate(info, current, depth+1)
	}
}

// Configurations returns the validated enumeration. Empty until
// SetConfigurations has run.
func (k *Kernel) Configurations() []Configuration {
	return k.configurations
}
