package ort

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/x448/float16"
)

// Tensor is a dense numeric tensor of element type T backed by Go memory.
// The backing slice is shared with the engine (zero-copy): it is pinned for
// the life of the native value, and writes through GetData are visible to
// the next Run without re-marshaling.
type Tensor[T any] struct {
	mu     sync.Mutex
	shape  Shape
	data   []T
	handle uintptr         // native OrtValue
	pinner *runtime.Pinner // pins the backing array while the engine may read it
}

func (t *Tensor[T]) ortValueHandle() uintptr {
	if t == nil {
		return 0
	}
	return t.handle
}

// NewTensor creates a tensor sharing the given backing data. The data slice
// must hold exactly the element count implied by shape.
func NewTensor[T any](shape Shape, data []T) (*Tensor[T], error) {
	elementType, elementSize, err := tensorElementType[T]()
	if err != nil {
		return nil, err
	}

	shapeCopy := cloneShape(shape)
	elementCount, err := shapeElementCount(shapeCopy)
	if err != nil {
		return nil, err
	}
	if len(data) != elementCount {
		return nil, fmt.Errorf("data length mismatch: got %d elements, expected %d for shape %v", len(data), elementCount, shapeCopy)
	}

	return newTensorFromData(shapeCopy, data, elementType, elementSize)
}

// NewEmptyTensor creates a zero-filled tensor with the given shape, useful
// as a pre-allocated output buffer for IOBinding.
func NewEmptyTensor[T any](shape Shape) (*Tensor[T], error) {
	elementType, elementSize, err := tensorElementType[T]()
	if err != nil {
		return nil, err
	}

	shapeCopy := cloneShape(shape)
	elementCount, err := shapeElementCount(shapeCopy)
	if err != nil {
		return nil, err
	}

	return newTensorFromData(shapeCopy, make([]T, elementCount), elementType, elementSize)
}

// NewScalar creates a rank-0 tensor holding a single value.
func NewScalar[T any](value T) (*Tensor[T], error) {
	return NewTensor[T](Shape{}, []T{value})
}

func newTensorFromData[T any](shape Shape, data []T, elementType TensorElementDataType, elementSize uintptr) (*Tensor[T], error) {
	dataBytes, err := tensorDataByteSize(len(data), elementSize)
	if err != nil {
		return nil, err
	}

	fns := currentAPI()
	if fns == nil {
		return nil, ErrNotInitialized
	}

	memInfo, err := cpuMemoryInfo(fns)
	if err != nil {
		return nil, err
	}
	defer fns.releaseMemoryInfo(memInfo)

	var dataPtr uintptr
	var pinner *runtime.Pinner
	if len(data) > 0 {
		pinner = &runtime.Pinner{}
		pinner.Pin(unsafe.SliceData(data))
		// #nosec G103 -- CGO-free FFI; backing array is pinned for the
		// OrtValue lifetime via runtime.Pinner.
		dataPtr = uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	}

	var valueHandle uintptr
	status := fns.createTensorWithDataAsOrtValue(memInfo, dataPtr, dataBytes, shapePtr(shape), uintptr(len(shape)), int32(elementType), &valueHandle)
	// The engine reads shape dimensions synchronously during the call;
	// data lifetime is guarded by the pinner.
	runtime.KeepAlive(shape)
	if err := statusToError("CreateTensorWithDataAsOrtValue", status); err != nil {
		if pinner != nil {
			pinner.Unpin()
		}
		return nil, err
	}

	tensor := &Tensor[T]{
		shape:  shape,
		data:   data,
		handle: valueHandle,
		pinner: pinner,
	}

	// Finalizer is a safety net to avoid leaking the OrtValue if callers
	// forget Destroy.
	runtime.SetFinalizer(tensor, func(t *Tensor[T]) {
		_ = t.Destroy()
	})

	return tensor, nil
}

func cpuMemoryInfo(fns *ortFuncs) (uintptr, error) {
	nameBytes, namePtr := GoToCstring("Cpu")
	var memInfo uintptr
	status := fns.createMemoryInfo(namePtr, int32(AllocatorTypeArena), 0, int32(MemTypeCPU), &memInfo)
	runtime.KeepAlive(nameBytes)
	if err := statusToError("CreateMemoryInfo", status); err != nil {
		return 0, err
	}
	return memInfo, nil
}

// GetData returns the tensor's backing data. Mutations are visible to the
// engine on the next run. After Destroy it returns nil.
func (t *Tensor[T]) GetData() []T {
	if t == nil {
		return nil
	}
	return t.data
}

// Shape returns the tensor shape.
func (t *Tensor[T]) Shape() Shape {
	if t == nil {
		return nil
	}
	return t.shape
}

// ElementType returns the tensor's runtime element type tag.
func (t *Tensor[T]) ElementType() TensorElementDataType {
	elementType, _, err := tensorElementType[T]()
	if err != nil {
		return TensorElementDataTypeUndefined
	}
	return elementType
}

// Destroy releases the native value and unpins the backing data. Safe to
// call more than once.
func (t *Tensor[T]) Destroy() error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	handle := t.handle
	pinner := t.pinner
	t.handle = 0
	t.data = nil
	t.shape = nil
	t.pinner = nil
	runtime.SetFinalizer(t, nil)
	t.mu.Unlock()

	if handle != 0 {
		if fns := currentAPI(); fns != nil && fns.releaseValue != nil {
			fns.releaseValue(handle)
		}
	}
	if pinner != nil {
		pinner.Unpin()
	}

	return nil
}

// StringTensor is a tensor of UTF-8 strings. Unlike numeric tensors, string
// storage is engine-managed and non-contiguous, so creation always copies:
// the native value is allocated first, then filled element by element.
type StringTensor struct {
	mu     sync.Mutex
	shape  Shape
	values []string
	handle uintptr
}

func (t *StringTensor) ortValueHandle() uintptr {
	if t == nil {
		return 0
	}
	return t.handle
}

// NewStringTensor creates a string tensor with the given shape and values.
func NewStringTensor(shape Shape, values []string) (*StringTensor, error) {
	shapeCopy := cloneShape(shape)
	elementCount, err := shapeElementCount(shapeCopy)
	if err != nil {
		return nil, err
	}
	if len(values) != elementCount {
		return nil, fmt.Errorf("data length mismatch: got %d strings, expected %d for shape %v", len(values), elementCount, shapeCopy)
	}

	fns := currentAPI()
	if fns == nil {
		return nil, ErrNotInitialized
	}

	allocator, err := defaultAllocator(fns)
	if err != nil {
		return nil, err
	}

	var valueHandle uintptr
	status := fns.createTensorAsOrtValue(allocator, shapePtr(shapeCopy), uintptr(len(shapeCopy)), int32(TensorElementDataTypeString), &valueHandle)
	runtime.KeepAlive(shapeCopy)
	if err := statusToError("CreateTensorAsOrtValue", status); err != nil {
		return nil, err
	}

	if len(values) > 0 {
		backing, pointers, arrayPtr := goStringsToCstrings(values)
		status = fns.fillStringTensor(valueHandle, arrayPtr, uintptr(len(values)))
		runtime.KeepAlive(backing)
		runtime.KeepAlive(pointers)
		if err := statusToError("FillStringTensor", status); err != nil {
			fns.releaseValue(valueHandle)
			return nil, err
		}
	}

	tensor := &StringTensor{
		shape:  shapeCopy,
		values: append([]string(nil), values...),
		handle: valueHandle,
	}

	runtime.SetFinalizer(tensor, func(t *StringTensor) {
		_ = t.Destroy()
	})

	return tensor, nil
}

// GetData returns the strings the tensor was created with.
func (t *StringTensor) GetData() []string {
	if t == nil {
		return nil
	}
	return t.values
}

// Shape returns the tensor shape.
func (t *StringTensor) Shape() Shape {
	if t == nil {
		return nil
	}
	return t.shape
}

// ElementType returns TensorElementDataTypeString.
func (t *StringTensor) ElementType() TensorElementDataType {
	return TensorElementDataTypeString
}

// Destroy releases the native value. Safe to call more than once.
func (t *StringTensor) Destroy() error {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	handle := t.handle
	t.handle = 0
	t.values = nil
	t.shape = nil
	runtime.SetFinalizer(t, nil)
	t.mu.Unlock()

	if handle != 0 {
		if fns := currentAPI(); fns != nil && fns.releaseValue != nil {
			fns.releaseValue(handle)
		}
	}

	return nil
}

func tensorDataByteSize(elementCount int, elementSize uintptr) (uintptr, error) {
	if elementCount < 0 {
		return 0, fmt.Errorf("element count cannot be negative: %d", elementCount)
	}
	if elementCount == 0 {
		return 0, nil
	}
	if elementSize == 0 {
		return 0, fmt.Errorf("element size cannot be zero")
	}

	count := uintptr(elementCount)
	if count > ^uintptr(0)/elementSize {
		return 0, fmt.Errorf("tensor data size overflow: %d elements with element size %d", elementCount, elementSize)
	}

	return count * elementSize, nil
}

// tensorElementType maps a Go element type T to its runtime element type
// tag and byte size. The native API is type-erased, so this runtime tag is
// the single source of dispatch for both marshaling directions.
func tensorElementType[T any]() (TensorElementDataType, uintptr, error) {
	var zero T

	switch any(zero).(type) {
	case float32:
		return TensorElementDataTypeFloat, unsafe.Sizeof(zero), nil
	case float64:
		return TensorElementDataTypeDouble, unsafe.Sizeof(zero), nil
	case float16.Float16:
		return TensorElementDataTypeFloat16, unsafe.Sizeof(zero), nil
	case int8:
		return TensorElementDataTypeInt8, unsafe.Sizeof(zero), nil
	case int16:
		return TensorElementDataTypeInt16, unsafe.Sizeof(zero), nil
	case int32:
		return TensorElementDataTypeInt32, unsafe.Sizeof(zero), nil
	case int64:
		return TensorElementDataTypeInt64, unsafe.Sizeof(zero), nil
	case uint8:
		return TensorElementDataTypeUint8, unsafe.Sizeof(zero), nil
	case uint16:
		return TensorElementDataTypeUint16, unsafe.Sizeof(zero), nil
	case uint32:
		return TensorElementDataTypeUint32, unsafe.Sizeof(zero), nil
	case uint64:
		return TensorElementDataTypeUint64, unsafe.Sizeof(zero), nil
	case bool:
		return TensorElementDataTypeBool, unsafe.Sizeof(zero), nil
	default:
		return TensorElementDataTypeUndefined, 0, fmt.Errorf("unsupported tensor element type %T", zero)
	}
}

// Float32ToFloat16 converts a float32 slice to IEEE 754 half precision for
// building float16 tensors.
func Float32ToFloat16(values []float32) []float16.Float16 {
	out := make([]float16.Float16, len(values))
	for i, v := range values {
		out[i] = float16.Fromfloat32(v)
	}
	return out
}

// Float16ToFloat32 widens a float16 slice back to float32.
func Float16ToFloat32(values []float16.Float16) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = v.Float32()
	}
	return out
}
