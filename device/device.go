// Package device defines the opaque device abstraction the tuner core is
// written against. The core only ever sees these interfaces; a real OCCA
// backend and a scripted mock both implement them.
package device

import (
	"fmt"
	"unsafe"
)

// BuildStatus classifies the outcome of a kernel compilation.
type BuildStatus int

const (
	BuildSuccess BuildStatus = iota
	BuildCompileError
	BuildInvalidBinary
)

// String returns a short name for the build status.
func (s BuildStatus) String() string {
	switch s {
	case BuildSuccess:
		return "success"
	case BuildCompileError:
		return "compile-error"
	case BuildInvalidBinary:
		return "invalid-binary"
	default:
		return "unknown"
	}
}

// BuildResult carries the compilation outcome and the toolchain's log.
type BuildResult struct {
	Status BuildStatus
	Log    string
}

// Info describes the device limits the tuner validates against.
// MemoryClock and MemoryBusWidth are not exposed by any supported backend
// and always read 0.
type Info struct {
	Name                  string
	Version               string
	MaxWorkGroupSize      uint64
	MaxWorkItemDimensions int
	MaxWorkItemSizes      [3]uint64
	LocalMemoryBytes      uint64
	MemoryClock           uint64
	MemoryBusWidth        uint64
}

// LocalMemoryValid reports whether a kernel's local-memory usage fits the
// device budget.
func (in Info) LocalMemoryValid(bytes uint64) bool {
	return bytes <= in.LocalMemoryBytes
}

// VerifyThreadSizes validates a launch geometry against the device limits
// and returns the work-group thread count. Every axis of global must divide
// exactly by the corresponding axis of local, every local axis must fit the
// per-axis cap, and the work-group product must fit MaxWorkGroupSize.
func (in Info) VerifyThreadSizes(global, local []uint64) (uint64, error) {
	if len(global) != len(local) {
		return 0, fmt.Errorf("global is %d-dimensional but local is %d-dimensional",
			len(global), len(local))
	}
	if len(global) == 0 || len(global) > in.MaxWorkItemDimensions {
		return 0, fmt.Errorf("unsupported number of dimensions: %d", len(global))
	}

	threads := uint64(1)
	for i := range global {
		if local[i] == 0 {
			return 0, fmt.Errorf("local size is zero on axis %d", i)
		}
		if global[i]%local[i] != 0 {
			return 0, fmt.Errorf("global size %d not divisible by local size %d on axis %d",
				global[i], local[i], i)
		}
		if local[i] > in.MaxWorkItemSizes[i] {
			return 0, fmt.Errorf("local size %d exceeds device limit %d on axis %d",
				local[i], in.MaxWorkItemSizes[i], i)
		}
		threads *= local[i]
	}
	if threads > in.MaxWorkGroupSize {
		return 0, fmt.Errorf("work-group size %d exceeds device limit %d",
			threads, in.MaxWorkGroupSize)
	}
	return threads, nil
}

// Device is one compute device with a serializing command queue. Kernel
// launches are asynchronous on the device; Finish blocks the caller until
// all queued work has completed.
type Device interface {
	Info() Info
	Compile(source, entry string) (Program, BuildResult)
	NewBuffer(bytes int64) (Buffer, error)
	Finish() error
	Free()
}

// Program is one compiled kernel with bound arguments.
type Program interface {
	// LocalMemUsage reports the compiled kernel's group-local memory
	// consumption in bytes, or 0 if the backend does not expose it.
	LocalMemUsage() (uint64, error)
	SetScalar(index int, value any) error
	SetBuffer(index int, buf Buffer) error
	// Launch enqueues one execution with the given geometry, waits for
	// completion, and returns the elapsed device time in milliseconds.
	Launch(global, local []uint64) (float64, error)
	Free()
}

// Buffer is one device allocation. The tuner moves data through raw
// pointers so heterogeneous element types share a single code path.
type Buffer interface {
	Write(src unsafe.Pointer, bytes int64) error
	Read(dst unsafe.Pointer, bytes int64) error
	Bytes() int64
	Free()
}
