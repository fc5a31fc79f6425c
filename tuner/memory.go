package tuner

import (
	"fmt"
	"unsafe"

	"github.com/notargets/kerneltuner/device"
	"github.com/notargets/kerneltuner/kernel"
)

// ElemType identifies the element type of a kernel argument.
type ElemType int

const (
	ElemI32 ElemType = iota
	ElemU64
	ElemF32
	ElemF64
	ElemCF32
	ElemCF64
)

// elemSize returns the byte stride of one element.
func elemSize(t ElemType) int64 {
	switch t {
	case ElemI32, ElemF32:
		return 4
	case ElemU64, ElemF64, ElemCF32:
		return 8
	case ElemCF64:
		return 16
	default:
		return 8
	}
}

// memArgument is one buffer bound to a kernel position. The session
// allocates the device buffer from the caller's slice and releases it in
// Tuner.Free; externally owned device buffers cannot be registered. The
// registry also owns the reset policy for outputs.
type memArgument struct {
	index    int
	size     int // element count
	elemType ElemType
	buffer   device.Buffer
	zeros    []byte // reusable reset image, outputs only
}

// scalarArgument is one scalar embedded at launch time.
type scalarArgument struct {
	index int
	value any
}

// snapshot is one reference output retained as a typed host array.
type snapshot struct {
	elemType ElemType
	i32      []int32
	u64      []uint64
	f32      []float32
	f64      []float64
	cf32     []complex64
	cf64     []complex128
}

// classify maps a user slice to its element type, count, and base pointer.
func classify(data any) (ElemType, int, unsafe.Pointer, error) {
	switch d := data.(type) {
	case []int32:
		return ElemI32, len(d), slicePtr(d), nil
	case []uint64:
		return ElemU64, len(d), slicePtr(d), nil
	case []float32:
		return ElemF32, len(d), slicePtr(d), nil
	case []float64:
		return ElemF64, len(d), slicePtr(d), nil
	case []complex64:
		return ElemCF32, len(d), slicePtr(d), nil
	case []complex128:
		return ElemCF64, len(d), slicePtr(d), nil
	default:
		return 0, 0, nil, fmt.Errorf("%w: unsupported argument type %T", kernel.ErrSchema, data)
	}
}

func slicePtr[T any](d []T) unsafe.Pointer {
	if len(d) == 0 {
		return nil
	}
	return unsafe.Pointer(&d[0])
}

// AddArgumentInput uploads an input buffer and binds it to the next
// kernel position. Inputs are uploaded once and never touched again.
func (t *Tuner) AddArgumentInput(data any) error {
	arg, err := t.newMemArgument(data)
	if err != nil {
		return err
	}
	_, _, ptr, _ := classify(data)
	if err := arg.buffer.Write(ptr, int64(arg.size)*elemSize(arg.elemType)); err != nil {
		return fmt.Errorf("failed to upload input argument %d: %w", arg.index, err)
	}
	t.inputs = append(t.inputs, arg)
	return nil
}

// AddArgumentOutput binds an output buffer to the next kernel position.
// Outputs are zeroed once per candidate, before its repeat loop; the slice
// only conveys the element type and count.
func (t *Tuner) AddArgumentOutput(data any) error {
	arg, err := t.newMemArgument(data)
	if err != nil {
		return err
	}
	arg.zeros = make([]byte, int64(arg.size)*elemSize(arg.elemType))
	t.outputs = append(t.outputs, arg)
	return nil
}

// AddArgumentScalar binds a scalar value to the next kernel position.
func (t *Tuner) AddArgumentScalar(value any) error {
	if t.frozen {
		return fmt.Errorf("%w: arguments cannot be added during the tuning phase", kernel.ErrSchema)
	}
	switch value.(type) {
	case int32, uint64, float32, float64, complex64, complex128:
	default:
		return fmt.Errorf("%w: unsupported scalar type %T", kernel.ErrSchema, value)
	}
	t.scalars = append(t.scalars, scalarArgument{index: t.argumentCounter, value: value})
	t.argumentCounter++
	return nil
}

func (t *Tuner) newMemArgument(data any) (*memArgument, error) {
	if t.frozen {
		return nil, fmt.Errorf("%w: arguments cannot be added during the tuning phase", kernel.ErrSchema)
	}
	elemType, n, _, err := classify(data)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: empty buffer argument", kernel.ErrSchema)
	}
	buf, err := t.dev.NewBuffer(int64(n) * elemSize(elemType))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate argument buffer: %w", err)
	}
	arg := &memArgument{
		index:    t.argumentCounter,
		size:     n,
		elemType: elemType,
		buffer:   buf,
	}
	t.argumentCounter++
	return arg, nil
}

// resetOutputs writes the zero image of every output buffer. The zero
// image is allocated once per output and reused across launches.
func (t *Tuner) resetOutputs() error {
	for _, out := range t.outputs {
		if err := out.buffer.Write(slicePtr(out.zeros), int64(len(out.zeros))); err != nil {
			return fmt.Errorf("failed to reset output %d: %w", out.index, err)
		}
	}
	return nil
}

// download reads a buffer argument into a typed host array.
func download(arg *memArgument) (snapshot, error) {
	snap := snapshot{elemType: arg.elemType}
	bytes := int64(arg.size) * elemSize(arg.elemType)

	var ptr unsafe.Pointer
	switch arg.elemType {
	case ElemI32:
		snap.i32 = make([]int32, arg.size)
		ptr = slicePtr(snap.i32)
	case ElemU64:
		snap.u64 = make([]uint64, arg.size)
		ptr = slicePtr(snap.u64)
	case ElemF32:
		snap.f32 = make([]float32, arg.size)
		ptr = slicePtr(snap.f32)
	case ElemF64:
		snap.f64 = make([]float64, arg.size)
		ptr = slicePtr(snap.f64)
	case ElemCF32:
		snap.cf32 = make([]complex64, arg.size)
		ptr = slicePtr(snap.cf32)
	case ElemCF64:
		snap.cf64 = make([]complex128, arg.size)
		ptr = slicePtr(snap.cf64)
	}
	if err := arg.buffer.Read(ptr, bytes); err != nil {
		return snapshot{}, fmt.Errorf("failed to download argument %d: %w", arg.index, err)
	}
	return snap, nil
}

// storeReferenceOutput downloads every output buffer into the reference
// snapshot. Written once, read-only thereafter.
func (t *Tuner) storeReferenceOutput() error {
	t.snapshots = t.snapshots[:0]
	for _, out := range t.outputs {
		snap, err := download(out)
		if err != nil {
			return err
		}
		t.snapshots = append(t.snapshots, snap)
	}
	return nil
}

// bind sets every registered argument on a compiled program.
func (t *Tuner) bind(prog device.Program) error {
	for _, in := range t.inputs {
		if err := prog.SetBuffer(in.index, in.buffer); err != nil {
			return fmt.Errorf("failed to bind input %d: %w", in.index, err)
		}
	}
	for _, out := range t.outputs {
		if err := prog.SetBuffer(out.index, out.buffer); err != nil {
			return fmt.Errorf("failed to bind output %d: %w", out.index, err)
		}
	}
	for _, s := range t.scalars {
		if err := prog.SetScalar(s.index, s.value); err != nil {
			return fmt.Errorf("failed to bind scalar %d: %w", s.index, err)
		}
	}
	return nil
}
