package device

import (
	"strconv"
	"strings"
	"unsafe"
)

// Mock is a scripted in-memory Device. It records every compilation and
// launch so tests can assert on the exact sequence the tuner produced, and
// its hooks let tests script build failures, launch times, and output
// buffer contents per candidate.
type Mock struct {
	// Props is returned by Info. Zero-value fields are replaced with
	// permissive defaults by NewMock.
	Props Info

	// CompileHook, when set, decides the build outcome for a given
	// assembled source. Defaults to success.
	CompileHook func(source, entry string) BuildResult

	// LocalMemHook, when set, reports the compiled kernel's local-memory
	// usage for a given source. Defaults to 0.
	LocalMemHook func(source string) uint64

	// LaunchHook, when set, is called once per launch and returns the
	// elapsed milliseconds. The hook may write output buffers through the
	// launch record. Defaults to 1.0 ms.
	LaunchHook func(l *MockLaunch) (float64, error)

	Compiles []string
	Launches []*MockLaunch
}

// MockLaunch records one kernel execution on the mock device.
type MockLaunch struct {
	Source  string
	Entry   string
	Global  []uint64
	Local   []uint64
	Scalars map[int]any
	Buffers map[int]*MockBuffer
	Run     int // repeat index within one measurement
}

// Defines parses the `#define NAME VALUE` lines the tuner prepends to a
// kernel source, so scripted time oracles can key on the configuration.
func Defines(source string) map[string]int {
	defines := make(map[string]int)
	for _, line := range strings.Split(source, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 3 || fields[0] != "#define" {
			continue
		}
		value, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		defines[fields[1]] = value
	}
	return defines
}

// NewMock creates a mock device with permissive limits.
func NewMock() *Mock {
	return &Mock{
		Props: Info{
			Name:                  "mock",
			Version:               "1.0",
			MaxWorkGroupSize:      1024,
			MaxWorkItemDimensions: 3,
			MaxWorkItemSizes:      [3]uint64{1024, 1024, 64},
			LocalMemoryBytes:      48 * 1024,
		},
	}
}

func (d *Mock) Info() Info { return d.Props }

func (d *Mock) Compile(source, entry string) (Program, BuildResult) {
	d.Compiles = append(d.Compiles, source)
	result := BuildResult{Status: BuildSuccess}
	if d.CompileHook != nil {
		result = d.CompileHook(source, entry)
	}
	if result.Status != BuildSuccess {
		return nil, result
	}
	return &mockProgram{
		dev:     d,
		source:  source,
		entry:   entry,
		scalars: make(map[int]any),
		buffers: make(map[int]*MockBuffer),
	}, result
}

func (d *Mock) NewBuffer(bytes int64) (Buffer, error) {
	return &MockBuffer{Data: make([]byte, bytes)}, nil
}

func (d *Mock) Finish() error { return nil }

func (d *Mock) Free() {}

type mockProgram struct {
	dev     *Mock
	source  string
	entry   string
	scalars map[int]any
	buffers map[int]*MockBuffer
	runs    int
}

func (p *mockProgram) LocalMemUsage() (uint64, error) {
	if p.dev.LocalMemHook != nil {
		return p.dev.LocalMemHook(p.source), nil
	}
	return 0, nil
}

func (p *mockProgram) SetScalar(index int, value any) error {
	p.scalars[index] = value
	return nil
}

func (p *mockProgram) SetBuffer(index int, buf Buffer) error {
	p.buffers[index] = buf.(*MockBuffer)
	return nil
}

func (p *mockProgram) Launch(global, local []uint64) (float64, error) {
	launch := &MockLaunch{
		Source:  p.source,
		Entry:   p.entry,
		Global:  append([]uint64(nil), global...),
		Local:   append([]uint64(nil), local...),
		Scalars: p.scalars,
		Buffers: p.buffers,
		Run:     p.runs,
	}
	p.runs++
	p.dev.Launches = append(p.dev.Launches, launch)
	if p.dev.LaunchHook != nil {
		return p.dev.LaunchHook(launch)
	}
	return 1.0, nil
}

func (p *mockProgram) Free() {}

// MockBuffer is a host-backed device allocation.
type MockBuffer struct {
	Data []byte
}

func (b *MockBuffer) Write(src unsafe.Pointer, bytes int64) error {
	copy(b.Data, unsafe.Slice((*byte)(src), bytes))
	return nil
}

func (b *MockBuffer) Read(dst unsafe.Pointer, bytes int64) error {
	copy(unsafe.Slice((*byte)(dst), bytes), b.Data)
	return nil
}

func (b *MockBuffer) Bytes() int64 { return int64(len(b.Data)) }

func (b *MockBuffer) Free() {}

// Float32s views the buffer contents as float32 values. Test helpers for
// scripting output contents from launch hooks.
func (b *MockBuffer) Float32s() []float32 {
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.Data[0])), len(b.Data)/4)
}

// Float64s views the buffer contents as float64 values.
func (b *MockBuffer) Float64s() []float64 {
	return unsafe.Slice((*float64)(unsafe.Pointer(&b.Data[0])), len(b.Data)/8)
}
