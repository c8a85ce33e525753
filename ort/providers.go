package ort

import (
	"runtime"
	"sort"
	"strconv"
	"unsafe"

	"k8s.io/klog/v2"
)

// ExecutionProviderSpec requests one hardware backend with its backend
// specific options. Specs are applied in declaration order; the first spec
// registered gets first claim on each graph node, with the CPU provider as
// the implicit final fallback.
type ExecutionProviderSpec struct {
	Backend ExecutionProvider
	Options map[string]string
}

// CUDAProvider builds a spec for the CUDA backend on the given device.
func CUDAProvider(deviceID int) ExecutionProviderSpec {
	return ExecutionProviderSpec{
		Backend: ProviderCUDA,
		Options: map[string]string{"device_id": intOption(deviceID)},
	}
}

// TensorRTProvider builds a spec for the TensorRT backend on the given device.
func TensorRTProvider(deviceID int) ExecutionProviderSpec {
	return ExecutionProviderSpec{
		Backend: ProviderTensorRT,
		Options: map[string]string{"device_id": intOption(deviceID)},
	}
}

// CoreMLProvider builds a spec for the CoreML backend.
func CoreMLProvider() ExecutionProviderSpec {
	return ExecutionProviderSpec{Backend: ProviderCoreML}
}

// XNNPACKProvider builds a spec for the XNNPACK backend with the given
// thread count. A count of zero leaves the backend default in place.
func XNNPACKProvider(threads int) ExecutionProviderSpec {
	spec := ExecutionProviderSpec{Backend: ProviderXNNPACK}
	if threads > 0 {
		spec.Options = map[string]string{"intra_op_num_threads": intOption(threads)}
	}
	return spec
}

// DirectMLProvider builds a spec for the DirectML backend on the given device.
func DirectMLProvider(deviceID int) ExecutionProviderSpec {
	return ExecutionProviderSpec{
		Backend: ProviderDirectML,
		Options: map[string]string{"device_id": intOption(deviceID)},
	}
}

func intOption(v int) string {
	if v < 0 {
		v = 0
	}
	return strconv.Itoa(v)
}

// AvailableProviders reports the execution providers compiled into the
// loaded runtime library. The runtime is loaded on demand.
func AvailableProviders() ([]ExecutionProvider, error) {
	mu.Lock()
	fns, err := ensureRuntimeLocked()
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	return availableProviders(fns)
}

// availableProviders queries and copies the runtime's provider name list.
func availableProviders(fns *ortFuncs) ([]ExecutionProvider, error) {
	if fns == nil {
		return nil, ErrNotInitialized
	}

	var names uintptr
	var count int32
	status := fns.getAvailableProviders(&names, &count)
	if err := statusToError("GetAvailableProviders", status); err != nil {
		return nil, err
	}

	providers := make([]ExecutionProvider, 0, count)
	if names != 0 && count > 0 {
		// #nosec G103 -- names is a char* array of count entries owned by
		// the runtime until ReleaseAvailableProviders.
		entries := unsafe.Slice((*uintptr)(unsafe.Pointer(names)), count)
		for _, entry := range entries {
			providers = append(providers, ExecutionProvider(CstringToGo(entry)))
		}
	}

	status = fns.releaseAvailableProviders(names, count)
	if err := statusToError("ReleaseAvailableProviders", status); err != nil {
		return nil, err
	}

	return providers, nil
}

func providerAvailable(available []ExecutionProvider, backend ExecutionProvider) bool {
	for _, p := range available {
		if p == backend {
			return true
		}
	}
	return false
}

// applyProviders registers each requested provider on the session options and
// returns the backends that were actually registered. Backends missing from
// the runtime build are skipped with a warning so the same configuration runs
// on heterogeneous fleets; an available backend that rejects its options fails
// the whole build with *ProviderConfigError.
func applyProviders(fns *ortFuncs, sessOpts uintptr, specs []ExecutionProviderSpec) ([]ExecutionProvider, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	available, err := availableProviders(fns)
	if err != nil {
		return nil, err
	}

	var registered []ExecutionProvider
	for _, spec := range specs {
		if spec.Backend == ProviderCPU {
			// Always present; nothing to register.
			continue
		}
		if !providerAvailable(available, spec.Backend) {
			klog.Warningf("execution provider %s is not available in this runtime build, skipping", spec.Backend)
			continue
		}
		if err := appendProvider(fns, sessOpts, spec); err != nil {
			return registered, err
		}
		registered = append(registered, spec.Backend)
		klog.V(2).Infof("registered execution provider %s", spec.Backend)
	}

	return registered, nil
}

// appendProvider registers one available provider. CUDA and TensorRT use
// their dedicated options handles; everything else goes through the generic
// append entry point.
func appendProvider(fns *ortFuncs, sessOpts uintptr, spec ExecutionProviderSpec) error {
	switch spec.Backend {
	case ProviderCUDA:
		return appendCUDAProvider(fns, sessOpts, spec.Options)
	case ProviderTensorRT:
		return appendTensorRTProvider(fns, sessOpts, spec.Options)
	default:
		return appendGenericProvider(fns, sessOpts, spec.Backend, spec.Options)
	}
}

func appendCUDAProvider(fns *ortFuncs, sessOpts uintptr, options map[string]string) error {
	var cudaOpts uintptr
	status := fns.createCUDAProviderOptions(&cudaOpts)
	if err := statusToError("CreateCUDAProviderOptions", status); err != nil {
		return &ProviderConfigError{Provider: ProviderCUDA, Cause: err}
	}
	defer fns.releaseCUDAProviderOptions(cudaOpts)

	if len(options) > 0 {
		keyBacking, keyPtrs, keysAddr, valueBacking, valuePtrs, valuesAddr, n := optionArrays(options)
		status = fns.updateCUDAProviderOptions(cudaOpts, keysAddr, valuesAddr, n)
		runtime.KeepAlive(keyBacking)
		runtime.KeepAlive(keyPtrs)
		runtime.KeepAlive(valueBacking)
		runtime.KeepAlive(valuePtrs)
		if err := statusToError("UpdateCUDAProviderOptions", status); err != nil {
			return &ProviderConfigError{Provider: ProviderCUDA, Cause: err}
		}
	}

	status = fns.appendExecutionProviderCUDA(sessOpts, cudaOpts)
	if err := statusToError("SessionOptionsAppendExecutionProvider_CUDA_V2", status); err != nil {
		return &ProviderConfigError{Provider: ProviderCUDA, Cause: err}
	}
	return nil
}

func appendTensorRTProvider(fns *ortFuncs, sessOpts uintptr, options map[string]string) error {
	var trtOpts uintptr
	status := fns.createTensorRTProviderOptions(&trtOpts)
	if err := statusToError("CreateTensorRTProviderOptions", status); err != nil {
		return &ProviderConfigError{Provider: ProviderTensorRT, Cause: err}
	}
	defer fns.releaseTensorRTProviderOptions(trtOpts)

	if len(options) > 0 {
		keyBacking, keyPtrs, keysAddr, valueBacking, valuePtrs, valuesAddr, n := optionArrays(options)
		status = fns.updateTensorRTProviderOptions(trtOpts, keysAddr, valuesAddr, n)
		runtime.KeepAlive(keyBacking)
		runtime.KeepAlive(keyPtrs)
		runtime.KeepAlive(valueBacking)
		runtime.KeepAlive(valuePtrs)
		if err := statusToError("UpdateTensorRTProviderOptions", status); err != nil {
			return &ProviderConfigError{Provider: ProviderTensorRT, Cause: err}
		}
	}

	status = fns.appendExecutionProviderTensorRT(sessOpts, trtOpts)
	if err := statusToError("SessionOptionsAppendExecutionProvider_TensorRT_V2", status); err != nil {
		return &ProviderConfigError{Provider: ProviderTensorRT, Cause: err}
	}
	return nil
}

func appendGenericProvider(fns *ortFuncs, sessOpts uintptr, backend ExecutionProvider, options map[string]string) error {
	nameBytes, namePtr := GoToCstring(backend.appendName())
	keyBacking, keyPtrs, keysAddr, valueBacking, valuePtrs, valuesAddr, n := optionArrays(options)

	status := fns.appendExecutionProvider(sessOpts, namePtr, keysAddr, valuesAddr, n)
	runtime.KeepAlive(nameBytes)
	runtime.KeepAlive(keyBacking)
	runtime.KeepAlive(keyPtrs)
	runtime.KeepAlive(valueBacking)
	runtime.KeepAlive(valuePtrs)
	if err := statusToError("SessionOptionsAppendExecutionProvider", status); err != nil {
		return &ProviderConfigError{Provider: backend, Cause: err}
	}
	return nil
}

// optionArrays flattens an options map into parallel C string arrays with a
// deterministic key order.
func optionArrays(options map[string]string) ([][]byte, []uintptr, uintptr, [][]byte, []uintptr, uintptr, uintptr) {
	if len(options) == 0 {
		return nil, nil, 0, nil, nil, 0, 0
	}

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = options[k]
	}

	keyBacking, keyPtrs, keysAddr := goStringsToCstrings(keys)
	valueBacking, valuePtrs, valuesAddr := goStringsToCstrings(values)
	return keyBacking, keyPtrs, keysAddr, valueBacking, valuePtrs, valuesAddr, uintptr(len(keys))
}
