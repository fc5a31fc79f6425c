// Package kernel models the tunable configuration space of a compute
// kernel: parameters with discrete value lists, constraint predicates over
// them, and the enumeration of valid configurations.
package kernel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchema marks definition-phase errors: duplicate parameters, empty
// value lists, constraints over undeclared parameters, additions after the
// schema is frozen. These are hard errors that abort a session.
var ErrSchema = errors.New("schema error")

// ErrNoConfigurations is returned when no configuration survives the
// constraints and pruning. An empty tuning run is a user error.
var ErrNoConfigurations = errors.New("no valid configurations")

// Parameter is a named tunable with a finite list of integer values. The
// order of the values is presentational; semantics are set-valued.
type Parameter struct {
	Name   string
	Values []int
}

// Constraint is a predicate over a subset of parameters, stored as data so
// it can be inspected and unit-tested independently of the engine. The
// predicate receives the values of Names in order and must not mutate
// state.
type Constraint struct {
	Names     []string
	Predicate func(values []int) bool
}

// LocalMemory is the formula for a kernel's configuration-dependent
// group-local memory consumption in bytes.
type LocalMemory struct {
	Names []string
	Eval  func(values []int) uint64
}

// Setting is one parameter bound to one value.
type Setting struct {
	Name  string
	Value int
}

// Define renders the setting as the preprocessor line prepended to the
// kernel source. This is the contract the kernel author codes against.
func (s Setting) Define() string {
	return fmt.Sprintf("#define %s %d\n", s.Name, s.Value)
}

// Configuration is a complete assignment of values to all parameters of
// one kernel, ordered by parameter declaration sequence.
type Configuration []Setting

// Define renders the configuration as preprocessor lines.
func (c Configuration) Define() string {
	var sb strings.Builder
	for _, s := range c {
		sb.WriteString(s.Define())
	}
	return sb.String()
}

// Value returns the value bound to a parameter name.
func (c Configuration) Value(name string) (int, bool) {
	for _, s := range c {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}

// Values returns the configuration's values in declaration order.
func (c Configuration) Values() []int {
	values := make([]int, len(c))
	for i, s := range c {
		values[i] = s.Value
	}
	return values
}

// String renders the configuration for logs: "A=1 B=4".
func (c Configuration) String() string {
	parts := make([]string, len(c))
	for i, s := range c {
		parts[i] = fmt.Sprintf("%s=%d", s.Name, s.Value)
	}
	return strings.Join(parts, " ")
}

// Equal reports whether two configurations bind identical settings.
func (c Configuration) Equal(other Configuration) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// values extracts the values of the named parameters from a configuration.
// The caller guarantees the names are declared.
func (c Configuration) values(names []string) []int {
	out := make([]int, len(names))
	for i, name := range names {
		v, _ := c.Value(name)
		out[i] = v
	}
	return out
}
