package ort

import (
	"runtime"
	"sync"
	"unsafe"
)

// IOBinding pins a session's inputs and outputs to pre-bound values so
// repeated runs skip per-call marshaling. Bound tensors are read in place on
// each run; refill the same backing buffer between runs instead of
// rebinding.
//
// An IOBinding is tied to the session it was created from and must be
// destroyed before that session is closed.
type IOBinding struct {
	mu      sync.Mutex
	handle  uintptr
	session *Session

	// Bound input values are retained so their pinned backing arrays stay
	// alive for the binding's lifetime.
	boundInputs map[string]Value
}

// NewIOBinding creates a binding scoped to this session.
func (s *Session) NewIOBinding() (*IOBinding, error) {
	fns := currentAPI()
	if fns == nil {
		return nil, ErrNotInitialized
	}

	s.mu.Lock()
	sessionHandle := s.handle
	s.mu.Unlock()
	if sessionHandle == 0 {
		return nil, ErrSessionClosed
	}

	var handle uintptr
	status := fns.createIoBinding(sessionHandle, &handle)
	if err := statusToError("CreateIoBinding", status); err != nil {
		return nil, err
	}

	b := &IOBinding{
		handle:      handle,
		session:     s,
		boundInputs: make(map[string]Value),
	}
	runtime.SetFinalizer(b, func(b *IOBinding) {
		_ = b.Destroy()
	})
	return b, nil
}

// BindInput binds a value to a named model input. The name, element type,
// and shape are validated against the session's specs at bind time, so a
// marshaling mistake surfaces here rather than inside the engine on run.
func (b *IOBinding) BindInput(name string, value Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == 0 {
		return ErrBindingDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	idx, ok := b.session.inputIndex[name]
	if !ok {
		return &NativeError{Op: "BindInput", Code: ErrorCodeInvalidArgument, Message: "unknown input name " + name}
	}
	if value == nil || value.ortValueHandle() == 0 {
		return &NativeError{Op: "BindInput", Code: ErrorCodeInvalidArgument, Message: "input " + name + " has no native value"}
	}

	spec := b.session.inputs[idx]
	if spec.Type == ONNXTypeTensor {
		if spec.ElementType != TensorElementDataTypeUndefined && value.ElementType() != spec.ElementType {
			return &TypeMismatchError{Stored: spec.ElementType, Requested: value.ElementType()}
		}
		if len(spec.Shape) > 0 && !shapeMatches(spec.Shape, value.Shape()) {
			return &NativeError{Op: "BindInput", Code: ErrorCodeInvalidArgument,
				Message: "input " + name + " shape " + value.Shape().String() + " does not match model shape " + spec.Shape.String()}
		}
	}

	nameBytes, namePtr := GoToCstring(name)
	status := fns.bindInput(b.handle, namePtr, value.ortValueHandle())
	runtime.KeepAlive(nameBytes)
	if err := statusToError("BindInput", status); err != nil {
		return err
	}

	b.boundInputs[name] = value
	return nil
}

// BindOutput binds a pre-allocated value to a named model output. Each run
// writes into the value's backing buffer in place.
func (b *IOBinding) BindOutput(name string, value Value) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == 0 {
		return ErrBindingDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	idx, ok := b.session.outputIndex[name]
	if !ok {
		return &NativeError{Op: "BindOutput", Code: ErrorCodeInvalidArgument, Message: "unknown output name " + name}
	}
	if value == nil || value.ortValueHandle() == 0 {
		return &NativeError{Op: "BindOutput", Code: ErrorCodeInvalidArgument, Message: "output " + name + " has no native value"}
	}

	spec := b.session.outputs[idx]
	if spec.Type == ONNXTypeTensor {
		if spec.ElementType != TensorElementDataTypeUndefined && value.ElementType() != spec.ElementType {
			return &TypeMismatchError{Stored: spec.ElementType, Requested: value.ElementType()}
		}
	}

	nameBytes, namePtr := GoToCstring(name)
	status := fns.bindOutput(b.handle, namePtr, value.ortValueHandle())
	runtime.KeepAlive(nameBytes)
	return statusToError("BindOutput", status)
}

// BindOutputToDevice binds a named output to a device placement, letting the
// engine allocate the output there on each run. Retrieve results with
// BoundOutputValues.
func (b *IOBinding) BindOutputToDevice(name string, memInfo *MemoryInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == 0 {
		return ErrBindingDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	if _, ok := b.session.outputIndex[name]; !ok {
		return &NativeError{Op: "BindOutputToDevice", Code: ErrorCodeInvalidArgument, Message: "unknown output name " + name}
	}
	if memInfo == nil || !memInfo.IsValid() {
		return &NativeError{Op: "BindOutputToDevice", Code: ErrorCodeInvalidArgument, Message: "memory info is not valid"}
	}

	nameBytes, namePtr := GoToCstring(name)
	status := fns.bindOutputToDevice(b.handle, namePtr, memInfo.handle)
	runtime.KeepAlive(nameBytes)
	runtime.KeepAlive(memInfo)
	return statusToError("BindOutputToDevice", status)
}

// BoundOutputNames lists the outputs currently bound on this binding.
func (b *IOBinding) BoundOutputNames() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == 0 {
		return nil, ErrBindingDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return nil, ErrNotInitialized
	}

	allocator, err := defaultAllocator(fns)
	if err != nil {
		return nil, err
	}

	var buffer, lengths, count uintptr
	status := fns.getBoundOutputNames(b.handle, allocator, &buffer, &lengths, &count)
	if err := statusToError("GetBoundOutputNames", status); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	// buffer packs the names back to back without terminators; lengths
	// holds one size per name. Both are allocator-owned.
	// #nosec G103
	sizes := unsafe.Slice((*uintptr)(unsafe.Pointer(lengths)), count)
	var total uintptr
	for _, size := range sizes {
		total += size
	}
	// #nosec G103
	packed := unsafe.Slice((*byte)(unsafe.Pointer(buffer)), total)

	names := make([]string, 0, count)
	var offset uintptr
	for _, size := range sizes {
		names = append(names, string(packed[offset:offset+size]))
		offset += size
	}

	fns.allocatorFree(allocator, buffer)
	fns.allocatorFree(allocator, lengths)
	return names, nil
}

// BoundOutputValues returns the current contents of every bound output, in
// the same order as BoundOutputNames. After each run the returned values
// reflect that run's results.
func (b *IOBinding) BoundOutputValues() ([]*RawValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == 0 {
		return nil, ErrBindingDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return nil, ErrNotInitialized
	}

	allocator, err := defaultAllocator(fns)
	if err != nil {
		return nil, err
	}

	var valuesPtr, count uintptr
	status := fns.getBoundOutputValues(b.handle, allocator, &valuesPtr, &count)
	if err := statusToError("GetBoundOutputValues", status); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	// #nosec G103 -- valuesPtr is an allocator-owned array of count handles.
	handles := unsafe.Slice((*uintptr)(unsafe.Pointer(valuesPtr)), count)
	values := make([]*RawValue, 0, count)
	for i, handle := range handles {
		value, err := wrapValue(fns, handle)
		if err != nil {
			for _, v := range values {
				_ = v.Destroy()
			}
			for _, h := range handles[i+1:] {
				fns.releaseValue(h)
			}
			fns.allocatorFree(allocator, valuesPtr)
			return nil, err
		}
		values = append(values, value)
	}

	fns.allocatorFree(allocator, valuesPtr)
	return values, nil
}

// ClearInputs removes every bound input.
func (b *IOBinding) ClearInputs() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == 0 {
		return ErrBindingDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	fns.clearBoundInputs(b.handle)
	b.boundInputs = make(map[string]Value)
	return nil
}

// ClearOutputs removes every bound output.
func (b *IOBinding) ClearOutputs() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == 0 {
		return ErrBindingDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	fns.clearBoundOutputs(b.handle)
	return nil
}

// Destroy releases the native binding. Safe to call more than once; the
// bound values themselves remain owned by the caller.
func (b *IOBinding) Destroy() error {
	b.mu.Lock()
	handle := b.handle
	b.handle = 0
	b.boundInputs = nil
	runtime.SetFinalizer(b, nil)
	b.mu.Unlock()

	if handle != 0 {
		if fns := currentAPI(); fns != nil && fns.releaseIoBinding != nil {
			fns.releaseIoBinding(handle)
		}
	}
	return nil
}

// RunWithBinding executes the model against the binding's pre-bound inputs
// and outputs. Failures are reported as *InferenceError and leave both the
// session and the binding usable.
func (s *Session) RunWithBinding(binding *IOBinding) error {
	return s.runWithBindingOptions(binding, nil)
}

// RunWithBindingOptions is RunWithBinding with per-call options.
func (s *Session) RunWithBindingOptions(binding *IOBinding, opts *RunOptions) error {
	return s.runWithBindingOptions(binding, opts)
}

func (s *Session) runWithBindingOptions(binding *IOBinding, opts *RunOptions) error {
	fns := currentAPI()
	if fns == nil {
		return &InferenceError{Cause: ErrNotInitialized}
	}

	s.mu.Lock()
	sessionHandle := s.handle
	s.mu.Unlock()
	if sessionHandle == 0 {
		return ErrSessionClosed
	}

	if binding == nil {
		return &InferenceError{Cause: ErrBindingDestroyed}
	}
	binding.mu.Lock()
	bindingHandle := binding.handle
	binding.mu.Unlock()
	if bindingHandle == 0 {
		return &InferenceError{Cause: ErrBindingDestroyed}
	}

	var runOpts uintptr
	if opts != nil {
		opts.mu.Lock()
		runOpts = opts.handle
		opts.mu.Unlock()
		if runOpts == 0 {
			return &InferenceError{Cause: ErrRunOptionsDestroyed}
		}
	}

	status := fns.runWithBinding(sessionHandle, runOpts, bindingHandle)
	runtime.KeepAlive(binding)
	runtime.KeepAlive(opts)
	if err := statusToError("RunWithBinding", status); err != nil {
		return &InferenceError{Cause: err}
	}
	return nil
}
