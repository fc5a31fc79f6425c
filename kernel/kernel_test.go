package kernel

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/notargets/kerneltuner/device"
)

func permissiveInfo() device.Info {
	return device.Info{
		MaxWorkGroupSize:      1 << 20,
		MaxWorkItemDimensions: 3,
		MaxWorkItemSizes:      [3]uint64{1 << 20, 1 << 20, 1 << 20},
		LocalMemoryBytes:      48 * 1024,
	}
}

func TestSchemaErrors(t *testing.T) {
	k, err := New("test", "src", []uint64{16}, []uint64{4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := k.AddParameter("A", []int{1, 2}); err != nil {
		t.Fatalf("AddParameter failed: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"duplicate parameter", func() error {
			return k.AddParameter("A", []int{3})
		}},
		{"empty value list", func() error {
			return k.AddParameter("B", nil)
		}},
		{"undeclared constraint reference", func() error {
			return k.AddConstraint(Constraint{
				Names:     []string{"NOPE"},
				Predicate: func(v []int) bool { return true },
			})
		}},
		{"undeclared modifier reference", func() error {
			return k.MulGlobalSize("NOPE")
		}},
		{"undeclared local-memory reference", func() error {
			return k.SetLocalMemoryUsage(LocalMemory{
				Names: []string{"NOPE"},
				Eval:  func(v []int) uint64 { return 0 },
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrSchema) {
				t.Errorf("expected schema error, got %v", err)
			}
		})
	}
}

func TestFrozenAfterEnumeration(t *testing.T) {
	k, _ := New("test", "src", []uint64{16}, []uint64{4})
	if err := k.AddParameter("A", []int{1, 2}); err != nil {
		t.Fatalf("AddParameter failed: %v", err)
	}
	if err := k.SetConfigurations(permissiveInfo()); err != nil {
		t.Fatalf("SetConfigurations failed: %v", err)
	}
	if err := k.AddParameter("B", []int{1}); !errors.Is(err, ErrSchema) {
		t.Errorf("expected schema error after freeze, got %v", err)
	}
}

// Constrained enumeration: A,B in {1,2,4} with A <= B yields six
// configurations in lexicographic order.
func TestConstrainedEnumeration(t *testing.T) {
	k, _ := New("test", "src", []uint64{16}, []uint64{4})
	if err := k.AddParameter("A", []int{1, 2, 4}); err != nil {
		t.Fatal(err)
	}
	if err := k.AddParameter("B", []int{1, 2, 4}); err != nil {
		t.Fatal(err)
	}
	if err := k.AddConstraint(Constraint{
		Names:     []string{"A", "B"},
		Predicate: func(v []int) bool { return v[0] <= v[1] },
	}); err != nil {
		t.Fatal(err)
	}

	if err := k.SetConfigurations(permissiveInfo()); err != nil {
		t.Fatalf("SetConfigurations failed: %v", err)
	}

	expected := [][2]int{{1, 1}, {1, 2}, {1, 4}, {2, 2}, {2, 4}, {4, 4}}
	configs := k.Configurations()
	if len(configs) != len(expected) {
		t.Fatalf("expected %d configurations, got %d", len(expected), len(configs))
	}
	for i, c := range configs {
		a, _ := c.Value("A")
		b, _ := c.Value("B")
		if a != expected[i][0] || b != expected[i][1] {
			t.Errorf("config %d: expected %v, got (%d,%d)", i, expected[i], a, b)
		}
	}
}

// Divisibility pruning: WPTX=3 does not divide 8192 and is removed from
// the enumeration; all other combinations pass.
func TestDivisibilityPruning(t *testing.T) {
	k, _ := New("test", "src", []uint64{8192, 4096}, []uint64{8, 8})
	if err := k.AddParameter("WPTX", []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := k.AddParameter("WPTY", []int{1, 2, 4}); err != nil {
		t.Fatal(err)
	}
	if err := k.DivGlobalSize("WPTX", "WPTY"); err != nil {
		t.Fatal(err)
	}

	if err := k.SetConfigurations(permissiveInfo()); err != nil {
		t.Fatalf("SetConfigurations failed: %v", err)
	}

	configs := k.Configurations()
	if len(configs) != 6 {
		t.Fatalf("expected 6 configurations, got %d", len(configs))
	}
	for _, c := range configs {
		if wptx, _ := c.Value("WPTX"); wptx == 3 {
			t.Errorf("WPTX=3 should have been pruned: %s", c)
		}
	}
}

func TestEmptyEnumeration(t *testing.T) {
	k, _ := New("test", "src", []uint64{16}, []uint64{4})
	if err := k.AddParameter("A", []int{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := k.AddConstraint(Constraint{
		Names:     []string{"A"},
		Predicate: func(v []int) bool { return false },
	}); err != nil {
		t.Fatal(err)
	}
	if err := k.SetConfigurations(permissiveInfo()); !errors.Is(err, ErrNoConfigurations) {
		t.Errorf("expected ErrNoConfigurations, got %v", err)
	}
}

// Geometry algebra: the final geometry equals the symbolic reduction of
// the base under the modifier sequence.
func TestComputeRanges(t *testing.T) {
	k, _ := New("test", "src", []uint64{1024, 512}, []uint64{8, 8})
	if err := k.AddParameter("WPT", []int{2}); err != nil {
		t.Fatal(err)
	}
	if err := k.AddParameter("TS", []int{16}); err != nil {
		t.Fatal(err)
	}
	if err := k.DivGlobalSize("WPT"); err != nil {
		t.Fatal(err)
	}
	if err := k.MulLocalSize("TS", "TS"); err != nil {
		t.Fatal(err)
	}
	if err := k.DivLocalSize("WPT", ""); err != nil {
		t.Fatal(err)
	}

	config := Configuration{{Name: "WPT", Value: 2}, {Name: "TS", Value: 16}}
	global, local, err := k.ComputeRanges(config)
	if err != nil {
		t.Fatalf("ComputeRanges failed: %v", err)
	}

	// global: (1024/2, 512) ; local: (8*16/2, 8*16)
	expectGlobal := []uint64{512, 512}
	expectLocal := []uint64{64, 128}
	for i := range expectGlobal {
		if global[i] != expectGlobal[i] {
			t.Errorf("global[%d]: expected %d, got %d", i, expectGlobal[i], global[i])
		}
		if local[i] != expectLocal[i] {
			t.Errorf("local[%d]: expected %d, got %d", i, expectLocal[i], local[i])
		}
	}
}

func TestComputeRangesInexactDivision(t *testing.T) {
	k, _ := New("test", "src", []uint64{10}, []uint64{1})
	if err := k.AddParameter("W", []int{3}); err != nil {
		t.Fatal(err)
	}
	if err := k.DivGlobalSize("W"); err != nil {
		t.Fatal(err)
	}
	config := Configuration{{Name: "W", Value: 3}}
	if _, _, err := k.ComputeRanges(config); err == nil {
		t.Error("expected inexact division error")
	}
}

// Local-memory pruning removes configurations whose formula exceeds the
// device budget.
func TestLocalMemoryPruning(t *testing.T) {
	k, _ := New("test", "src", []uint64{64}, []uint64{8})
	if err := k.AddParameter("TS", []int{8, 64, 4096}); err != nil {
		t.Fatal(err)
	}
	if err := k.SetLocalMemoryUsage(LocalMemory{
		Names: []string{"TS"},
		Eval:  func(v []int) uint64 { return uint64(v[0]) * 4 * 8 },
	}); err != nil {
		t.Fatal(err)
	}

	info := permissiveInfo()
	info.LocalMemoryBytes = 16 * 1024
	if err := k.SetConfigurations(info); err != nil {
		t.Fatalf("SetConfigurations failed: %v", err)
	}
	if len(k.Configurations()) != 2 {
		t.Errorf("expected TS=4096 pruned, got %d configurations", len(k.Configurations()))
	}
}

// Enumeration completeness: the enumerator returns exactly the subset of
// the cartesian product passing every constraint, for random schemas.
func TestEnumerationCompleteness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		numParams := 1 + rng.Intn(5)
		k, _ := New("test", "src", []uint64{16}, []uint64{1})

		names := make([]string, numParams)
		values := make([][]int, numParams)
		for p := 0; p < numParams; p++ {
			names[p] = string(rune('A' + p))
			n := 1 + rng.Intn(8)
			values[p] = make([]int, n)
			for i := range values[p] {
				values[p][i] = i + 1
			}
			if err := k.AddParameter(names[p], values[p]); err != nil {
				t.Fatal(err)
			}
		}

		// Up to 3 random threshold constraints
		type plainConstraint struct {
			param     int
			threshold int
		}
		var plain []plainConstraint
		for c := 0; c < rng.Intn(4); c++ {
			pc := plainConstraint{param: rng.Intn(numParams), threshold: 1 + rng.Intn(8)}
			plain = append(plain, pc)
			threshold := pc.threshold
			if err := k.AddConstraint(Constraint{
				Names:     []string{names[pc.param]},
				Predicate: func(v []int) bool { return v[0] <= threshold },
			}); err != nil {
				t.Fatal(err)
			}
		}

		// Count the product subset directly
		expected := 0
		total := 1
		for _, vs := range values {
			total *= len(vs)
		}
		for idx := 0; idx < total; idx++ {
			rest := idx
			assignment := make([]int, numParams)
			for p := numParams - 1; p >= 0; p-- {
				assignment[p] = values[p][rest%len(values[p])]
				rest /= len(values[p])
			}
			ok := true
			for _, pc := range plain {
				if assignment[pc.param] > pc.threshold {
					ok = false
					break
				}
			}
			if ok {
				expected++
			}
		}

		err := k.SetConfigurations(permissiveInfo())
		if expected == 0 {
			if !errors.Is(err, ErrNoConfigurations) {
				t.Fatalf("trial %d: expected ErrNoConfigurations, got %v", trial, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("trial %d: SetConfigurations failed: %v", trial, err)
		}
		if got := len(k.Configurations()); got != expected {
			t.Errorf("trial %d: expected %d configurations, got %d", trial, expected, got)
		}
	}
}

func TestConfigurationDefine(t *testing.T) {
	config := Configuration{{Name: "TS", Value: 64}, {Name: "WPT", Value: 2}}
	expected := "#define TS 64\n#define WPT 2\n"
	if got := config.Define(); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
