package ort

import (
	"runtime"
	"sync"
	"unsafe"
)

// RawValue wraps an engine-allocated output value whose concrete type the
// caller has not yet requested. The native representation is type-erased;
// the element type tag and shape are resolved once at wrap time and every
// extraction is checked against them.
type RawValue struct {
	mu          sync.Mutex
	handle      uintptr
	valueType   ONNXType
	elementType TensorElementDataType
	shape       Shape
}

func (v *RawValue) ortValueHandle() uintptr {
	if v == nil {
		return 0
	}
	return v.handle
}

// wrapValue takes ownership of a native value handle and resolves its type
// tag and shape.
func wrapValue(fns *ortFuncs, handle uintptr) (*RawValue, error) {
	v := &RawValue{handle: handle, valueType: ONNXTypeUnknown}

	var onnxType int32
	status := fns.getValueType(handle, &onnxType)
	if err := statusToError("GetValueType", status); err != nil {
		fns.releaseValue(handle)
		return nil, err
	}
	v.valueType = ONNXType(onnxType)

	if v.valueType == ONNXTypeTensor {
		elementType, shape, err := tensorTypeAndShape(fns, handle)
		if err != nil {
			fns.releaseValue(handle)
			return nil, err
		}
		v.elementType = elementType
		v.shape = shape
	}

	runtime.SetFinalizer(v, func(v *RawValue) {
		_ = v.Destroy()
	})
	return v, nil
}

// tensorTypeAndShape reads the element type tag and dimensions of a native
// tensor value.
func tensorTypeAndShape(fns *ortFuncs, handle uintptr) (TensorElementDataType, Shape, error) {
	var info uintptr
	status := fns.getTensorTypeAndShape(handle, &info)
	if err := statusToError("GetTensorTypeAndShape", status); err != nil {
		return TensorElementDataTypeUndefined, nil, err
	}
	defer fns.releaseTensorTypeAndShapeInfo(info)

	var elementType int32
	status = fns.getTensorElementType(info, &elementType)
	if err := statusToError("GetTensorElementType", status); err != nil {
		return TensorElementDataTypeUndefined, nil, err
	}

	var dimCount uintptr
	status = fns.getDimensionsCount(info, &dimCount)
	if err := statusToError("GetDimensionsCount", status); err != nil {
		return TensorElementDataTypeUndefined, nil, err
	}

	shape := make(Shape, dimCount)
	if dimCount > 0 {
		status = fns.getDimensions(info, unsafe.SliceData(shape), dimCount)
		if err := statusToError("GetDimensions", status); err != nil {
			return TensorElementDataTypeUndefined, nil, err
		}
	}

	return TensorElementDataType(elementType), shape, nil
}

// Type returns the value kind (tensor, sequence, map, ...).
func (v *RawValue) Type() ONNXType { return v.valueType }

// ElementType returns the element type tag for tensor values, or
// TensorElementDataTypeUndefined otherwise.
func (v *RawValue) ElementType() TensorElementDataType { return v.elementType }

// Shape returns the tensor shape, or nil for non-tensor values.
func (v *RawValue) Shape() Shape { return v.shape }

// Destroy releases the native value. Safe to call more than once.
func (v *RawValue) Destroy() error {
	if v == nil {
		return nil
	}

	v.mu.Lock()
	handle := v.handle
	v.handle = 0
	v.shape = nil
	runtime.SetFinalizer(v, nil)
	v.mu.Unlock()

	if handle != 0 {
		if fns := currentAPI(); fns != nil && fns.releaseValue != nil {
			fns.releaseValue(handle)
		}
	}
	return nil
}

// TensorData extracts a numeric tensor's contents as a copy, after checking
// the requested element type T against the stored tag. A mismatch fails
// with *TypeMismatchError; bytes are never reinterpreted.
func TensorData[T any](v *RawValue) (Shape, []T, error) {
	requested, _, err := tensorElementType[T]()
	if err != nil {
		return nil, nil, err
	}

	fns := currentAPI()
	if fns == nil {
		return nil, nil, ErrNotInitialized
	}
	if v == nil || v.handle == 0 {
		return nil, nil, ErrValueDestroyed
	}
	if v.valueType != ONNXTypeTensor {
		return nil, nil, &TypeMismatchError{Stored: TensorElementDataTypeUndefined, Requested: requested}
	}
	if v.elementType != requested {
		return nil, nil, &TypeMismatchError{Stored: v.elementType, Requested: requested}
	}

	count, err := shapeElementCount(v.shape)
	if err != nil {
		return nil, nil, err
	}

	out := make([]T, count)
	if count > 0 {
		var dataPtr uintptr
		status := fns.getTensorMutableData(v.handle, &dataPtr)
		if err := statusToError("GetTensorMutableData", status); err != nil {
			return nil, nil, err
		}
		// #nosec G103 -- bounded copy out of the engine's buffer; count and
		// element size were validated against the value's own shape info.
		src := unsafe.Slice((*T)(unsafe.Pointer(dataPtr)), count)
		copy(out, src)
	}

	return cloneShape(v.shape), out, nil
}

// StringData extracts a string tensor's contents. Requesting strings from a
// non-string tensor fails with *TypeMismatchError.
func StringData(v *RawValue) (Shape, []string, error) {
	fns := currentAPI()
	if fns == nil {
		return nil, nil, ErrNotInitialized
	}
	if v == nil || v.handle == 0 {
		return nil, nil, ErrValueDestroyed
	}
	if v.valueType != ONNXTypeTensor || v.elementType != TensorElementDataTypeString {
		return nil, nil, &TypeMismatchError{Stored: v.elementType, Requested: TensorElementDataTypeString}
	}

	count, err := shapeElementCount(v.shape)
	if err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return cloneShape(v.shape), []string{}, nil
	}

	var totalLen uintptr
	status := fns.getStringTensorDataLength(v.handle, &totalLen)
	if err := statusToError("GetStringTensorDataLength", status); err != nil {
		return nil, nil, err
	}

	buf := make([]byte, totalLen)
	offsets := make([]uintptr, count)
	var bufPtr uintptr
	if totalLen > 0 {
		// #nosec G103 -- destination buffer for the engine's string copy.
		bufPtr = uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	}
	status = fns.getStringTensorContent(v.handle, bufPtr, totalLen, unsafe.SliceData(offsets), uintptr(count))
	runtime.KeepAlive(buf)
	if err := statusToError("GetStringTensorContent", status); err != nil {
		return nil, nil, err
	}

	// Strings are packed back to back; offsets mark each element's start.
	values := make([]string, count)
	for i := 0; i < count; i++ {
		start := int(offsets[i])
		end := int(totalLen)
		if i+1 < count {
			end = int(offsets[i+1])
		}
		if start > end || end > len(buf) {
			return nil, nil, &NativeError{Op: "GetStringTensorContent", Code: ErrorCodeFail, Message: "inconsistent string tensor offsets"}
		}
		values[i] = string(buf[start:end])
	}

	return cloneShape(v.shape), values, nil
}
