package ort

import (
	"runtime"
	"sync"
	"unsafe"

	"k8s.io/klog/v2"
)

// SessionConfig collects everything that shapes session construction. Use
// NewSessionConfig for sensible defaults; the zero value disables graph
// optimization.
type SessionConfig struct {
	// GraphOptimization selects how aggressively the engine rewrites the
	// graph at load time.
	GraphOptimization GraphOptimizationLevel
	// IntraOpThreads bounds parallelism inside one operator. Zero keeps the
	// engine default.
	IntraOpThreads int
	// InterOpThreads bounds parallelism across operators when ExecutionMode
	// is parallel. Zero keeps the engine default.
	InterOpThreads int
	// ExecutionMode selects sequential or parallel node scheduling.
	ExecutionMode ExecutionMode
	// Providers are tried in order; backends absent from the runtime build
	// are skipped, leaving CPU as the final fallback.
	Providers []ExecutionProviderSpec
	// LogSeverity overrides the session-local log severity when non-nil.
	LogSeverity *LoggingLevel
	// DisableCPUMemArena turns off the CPU memory arena.
	DisableCPUMemArena bool
	// DisableMemPattern turns off memory pattern optimization.
	DisableMemPattern bool
	// ProfilingPrefix enables native profiling with the given file prefix.
	ProfilingPrefix string
	// FreeDimensionOverrides pins named symbolic dimensions to fixed values.
	FreeDimensionOverrides map[string]int64
	// ConfigEntries are passed through to AddSessionConfigEntry verbatim.
	ConfigEntries map[string]string
}

// NewSessionConfig returns a config with full graph optimization and
// sequential execution.
func NewSessionConfig() *SessionConfig {
	return &SessionConfig{
		GraphOptimization: GraphOptimizationLevelEnableAll,
		ExecutionMode:     ExecutionModeSequential,
	}
}

// Session owns one loaded model and its native session handle. Input and
// output specs are resolved once at build time; Run and RunWithBinding
// validate against them without further native calls.
//
// A Session is safe for concurrent Run calls when ConcurrentRunsSafe reports
// true. Close may race with Run only in the sense that Run observes the
// closed state and fails cleanly.
type Session struct {
	mu     sync.Mutex
	handle uintptr

	inputs      []IOSpec
	outputs     []IOSpec
	inputIndex  map[string]int
	outputIndex map[string]int
	metadata    ModelMetadata

	providers      []ExecutionProvider
	concurrentSafe bool
}

// BuildSession loads the model at modelPath and constructs a session around
// it. Every failure is reported as *SessionBuildError; no native session
// exists when an error is returned.
func BuildSession(modelPath string, cfg *SessionConfig) (*Session, error) {
	return buildSession(modelPath, nil, cfg)
}

// BuildSessionFromBytes constructs a session from an in-memory model. The
// engine copies what it needs during construction; modelData is not retained.
func BuildSessionFromBytes(modelData []byte, cfg *SessionConfig) (*Session, error) {
	return buildSession("", modelData, cfg)
}

func buildSession(modelPath string, modelData []byte, cfg *SessionConfig) (*Session, error) {
	if cfg == nil {
		cfg = NewSessionConfig()
	}

	env, fns, err := acquireEnvironment()
	if err != nil {
		return nil, &SessionBuildError{Cause: err}
	}

	handle, providers, err := createNativeSession(env, fns, modelPath, modelData, cfg)
	if err != nil {
		releaseEnvironment()
		return nil, &SessionBuildError{Cause: err}
	}

	s := &Session{
		handle:    handle,
		providers: providers,
		// Concurrent Run calls on one session are validated for the CPU
		// provider. Device backends share per-session device state, so the
		// flag flips off as soon as one registers.
		concurrentSafe: len(providers) == 0,
	}

	if err := s.resolveIOSpecs(fns); err != nil {
		fns.releaseSession(handle)
		releaseEnvironment()
		return nil, &SessionBuildError{Cause: err}
	}
	if err := s.resolveMetadata(fns); err != nil {
		fns.releaseSession(handle)
		releaseEnvironment()
		return nil, &SessionBuildError{Cause: err}
	}

	runtime.SetFinalizer(s, func(s *Session) {
		_ = s.Close()
	})
	klog.V(1).Infof("session built: %d inputs, %d outputs, providers=%v",
		len(s.inputs), len(s.outputs), s.providers)
	return s, nil
}

// createNativeSession builds the session options, registers providers, and
// creates the native session. The options handle never outlives this call.
func createNativeSession(env uintptr, fns *ortFuncs, modelPath string, modelData []byte, cfg *SessionConfig) (uintptr, []ExecutionProvider, error) {
	var sessOpts uintptr
	status := fns.createSessionOptions(&sessOpts)
	if err := statusToError("CreateSessionOptions", status); err != nil {
		return 0, nil, err
	}
	defer fns.releaseSessionOptions(sessOpts)

	if err := configureSessionOptions(fns, sessOpts, cfg); err != nil {
		return 0, nil, err
	}

	providers, err := applyProviders(fns, sessOpts, cfg.Providers)
	if err != nil {
		return 0, nil, err
	}

	var handle uintptr
	if modelData != nil {
		if len(modelData) == 0 {
			return 0, nil, &NativeError{Op: "CreateSessionFromArray", Code: ErrorCodeInvalidArgument, Message: "empty model data"}
		}
		// #nosec G103 -- the engine copies the model during construction.
		dataPtr := uintptr(unsafe.Pointer(unsafe.SliceData(modelData)))
		status = fns.createSessionFromArray(env, dataPtr, uintptr(len(modelData)), sessOpts, &handle)
		runtime.KeepAlive(modelData)
		if err := statusToError("CreateSessionFromArray", status); err != nil {
			return 0, nil, err
		}
	} else {
		pathPtr, pathBacking, err := goStringToORTChar(modelPath)
		if err != nil {
			return 0, nil, err
		}
		status = fns.createSession(env, pathPtr, sessOpts, &handle)
		runtime.KeepAlive(pathBacking)
		if err := statusToError("CreateSession", status); err != nil {
			return 0, nil, err
		}
	}

	return handle, providers, nil
}

func configureSessionOptions(fns *ortFuncs, sessOpts uintptr, cfg *SessionConfig) error {
	status := fns.setSessionGraphOptimizationLevel(sessOpts, int32(cfg.GraphOptimization))
	if err := statusToError("SetSessionGraphOptimizationLevel", status); err != nil {
		return err
	}

	if cfg.IntraOpThreads > 0 {
		status = fns.setIntraOpNumThreads(sessOpts, int32(cfg.IntraOpThreads))
		if err := statusToError("SetIntraOpNumThreads", status); err != nil {
			return err
		}
	}
	if cfg.InterOpThreads > 0 {
		status = fns.setInterOpNumThreads(sessOpts, int32(cfg.InterOpThreads))
		if err := statusToError("SetInterOpNumThreads", status); err != nil {
			return err
		}
	}

	status = fns.setSessionExecutionMode(sessOpts, int32(cfg.ExecutionMode))
	if err := statusToError("SetSessionExecutionMode", status); err != nil {
		return err
	}

	if cfg.LogSeverity != nil {
		status = fns.setSessionLogSeverityLevel(sessOpts, int32(*cfg.LogSeverity))
		if err := statusToError("SetSessionLogSeverityLevel", status); err != nil {
			return err
		}
	}

	if cfg.DisableCPUMemArena {
		status = fns.disableCpuMemArena(sessOpts)
		if err := statusToError("DisableCpuMemArena", status); err != nil {
			return err
		}
	}
	if cfg.DisableMemPattern {
		status = fns.disableMemPattern(sessOpts)
		if err := statusToError("DisableMemPattern", status); err != nil {
			return err
		}
	}

	if cfg.ProfilingPrefix != "" {
		prefixPtr, prefixBacking, err := goStringToORTChar(cfg.ProfilingPrefix)
		if err != nil {
			return err
		}
		status = fns.enableProfiling(sessOpts, prefixPtr)
		runtime.KeepAlive(prefixBacking)
		if err := statusToError("EnableProfiling", status); err != nil {
			return err
		}
	}

	for name, value := range cfg.FreeDimensionOverrides {
		nameBytes, namePtr := GoToCstring(name)
		status = fns.addFreeDimensionOverrideByName(sessOpts, namePtr, value)
		runtime.KeepAlive(nameBytes)
		if err := statusToError("AddFreeDimensionOverrideByName", status); err != nil {
			return err
		}
	}

	for key, value := range cfg.ConfigEntries {
		keyBytes, keyPtr := GoToCstring(key)
		valueBytes, valuePtr := GoToCstring(value)
		status = fns.addSessionConfigEntry(sessOpts, keyPtr, valuePtr)
		runtime.KeepAlive(keyBytes)
		runtime.KeepAlive(valueBytes)
		if err := statusToError("AddSessionConfigEntry", status); err != nil {
			return err
		}
	}

	return nil
}

// resolveIOSpecs queries and caches the model's input and output slots.
func (s *Session) resolveIOSpecs(fns *ortFuncs) error {
	allocator, err := defaultAllocator(fns)
	if err != nil {
		return err
	}

	var inputCount, outputCount uintptr
	status := fns.sessionGetInputCount(s.handle, &inputCount)
	if err := statusToError("SessionGetInputCount", status); err != nil {
		return err
	}
	status = fns.sessionGetOutputCount(s.handle, &outputCount)
	if err := statusToError("SessionGetOutputCount", status); err != nil {
		return err
	}

	s.inputs = make([]IOSpec, inputCount)
	s.inputIndex = make(map[string]int, inputCount)
	for i := uintptr(0); i < inputCount; i++ {
		spec, err := resolveIOSpec(fns, allocator, s.handle, i, true)
		if err != nil {
			return err
		}
		s.inputs[i] = spec
		s.inputIndex[spec.Name] = int(i)
	}

	s.outputs = make([]IOSpec, outputCount)
	s.outputIndex = make(map[string]int, outputCount)
	for i := uintptr(0); i < outputCount; i++ {
		spec, err := resolveIOSpec(fns, allocator, s.handle, i, false)
		if err != nil {
			return err
		}
		s.outputs[i] = spec
		s.outputIndex[spec.Name] = int(i)
	}

	return nil
}

func resolveIOSpec(fns *ortFuncs, allocator uintptr, session uintptr, index uintptr, input bool) (IOSpec, error) {
	getName := fns.sessionGetOutputName
	getTypeInfo := fns.sessionGetOutputTypeInfo
	op := "SessionGetOutput"
	if input {
		getName = fns.sessionGetInputName
		getTypeInfo = fns.sessionGetInputTypeInfo
		op = "SessionGetInput"
	}

	var namePtr uintptr
	status := getName(session, index, allocator, &namePtr)
	if err := statusToError(op+"Name", status); err != nil {
		return IOSpec{}, err
	}
	spec := IOSpec{Name: allocatedString(fns, allocator, namePtr)}

	var typeInfo uintptr
	status = getTypeInfo(session, index, &typeInfo)
	if err := statusToError(op+"TypeInfo", status); err != nil {
		return IOSpec{}, err
	}
	defer fns.releaseTypeInfo(typeInfo)

	var onnxType int32
	status = fns.getOnnxTypeFromTypeInfo(typeInfo, &onnxType)
	if err := statusToError("GetOnnxTypeFromTypeInfo", status); err != nil {
		return IOSpec{}, err
	}
	spec.Type = ONNXType(onnxType)

	if spec.Type != ONNXTypeTensor {
		return spec, nil
	}

	// The tensor info is a view into the type info; only the parent is
	// released.
	var tensorInfo uintptr
	status = fns.castTypeInfoToTensorInfo(typeInfo, &tensorInfo)
	if err := statusToError("CastTypeInfoToTensorInfo", status); err != nil {
		return IOSpec{}, err
	}

	var elementType int32
	status = fns.getTensorElementType(tensorInfo, &elementType)
	if err := statusToError("GetTensorElementType", status); err != nil {
		return IOSpec{}, err
	}
	spec.ElementType = TensorElementDataType(elementType)

	var dimCount uintptr
	status = fns.getDimensionsCount(tensorInfo, &dimCount)
	if err := statusToError("GetDimensionsCount", status); err != nil {
		return IOSpec{}, err
	}
	spec.Shape = make(Shape, dimCount)
	if dimCount > 0 {
		// Symbolic dimensions come back as -1.
		status = fns.getDimensions(tensorInfo, unsafe.SliceData(spec.Shape), dimCount)
		if err := statusToError("GetDimensions", status); err != nil {
			return IOSpec{}, err
		}
	}

	return spec, nil
}

// resolveMetadata reads the model's descriptive metadata once at build time.
func (s *Session) resolveMetadata(fns *ortFuncs) error {
	allocator, err := defaultAllocator(fns)
	if err != nil {
		return err
	}

	var meta uintptr
	status := fns.sessionGetModelMetadata(s.handle, &meta)
	if err := statusToError("SessionGetModelMetadata", status); err != nil {
		return err
	}
	defer fns.releaseModelMetadata(meta)

	fields := []struct {
		get  func(meta uintptr, allocator uintptr, out *uintptr) uintptr
		op   string
		into *string
	}{
		{fns.modelMetadataGetProducerName, "ModelMetadataGetProducerName", &s.metadata.ProducerName},
		{fns.modelMetadataGetGraphName, "ModelMetadataGetGraphName", &s.metadata.GraphName},
		{fns.modelMetadataGetDomain, "ModelMetadataGetDomain", &s.metadata.Domain},
		{fns.modelMetadataGetDescription, "ModelMetadataGetDescription", &s.metadata.Description},
	}
	for _, f := range fields {
		var ptr uintptr
		status = f.get(meta, allocator, &ptr)
		if err := statusToError(f.op, status); err != nil {
			return err
		}
		*f.into = allocatedString(fns, allocator, ptr)
	}

	status = fns.modelMetadataGetVersion(meta, &s.metadata.Version)
	if err := statusToError("ModelMetadataGetVersion", status); err != nil {
		return err
	}

	var keysPtr uintptr
	var keyCount int64
	status = fns.modelMetadataGetCustomMetadataMapKeys(meta, allocator, &keysPtr, &keyCount)
	if err := statusToError("ModelMetadataGetCustomMetadataMapKeys", status); err != nil {
		return err
	}
	if keysPtr != 0 && keyCount > 0 {
		// #nosec G103 -- keysPtr is an allocator-owned char* array of
		// keyCount entries; each entry and the array itself are freed below.
		entries := unsafe.Slice((*uintptr)(unsafe.Pointer(keysPtr)), keyCount)
		s.metadata.CustomKeys = make([]string, 0, keyCount)
		for _, entry := range entries {
			s.metadata.CustomKeys = append(s.metadata.CustomKeys, allocatedString(fns, allocator, entry))
		}
	}
	if keysPtr != 0 {
		fns.allocatorFree(allocator, keysPtr)
	}

	return nil
}

// Inputs returns the model's input slots in graph order.
func (s *Session) Inputs() []IOSpec {
	specs := make([]IOSpec, len(s.inputs))
	copy(specs, s.inputs)
	return specs
}

// Outputs returns the model's output slots in graph order.
func (s *Session) Outputs() []IOSpec {
	specs := make([]IOSpec, len(s.outputs))
	copy(specs, s.outputs)
	return specs
}

// Metadata returns the model's descriptive metadata.
func (s *Session) Metadata() ModelMetadata {
	meta := s.metadata
	meta.CustomKeys = append([]string(nil), s.metadata.CustomKeys...)
	return meta
}

// Providers returns the execution providers registered on this session, in
// registration order. CPU is the implicit final entry and is not listed.
func (s *Session) Providers() []ExecutionProvider {
	return append([]ExecutionProvider(nil), s.providers...)
}

// ConcurrentRunsSafe reports whether concurrent Run calls on this session
// are supported. Device providers keep per-session state, so the flag is
// false once any of them is registered.
func (s *Session) ConcurrentRunsSafe() bool {
	return s.concurrentSafe
}

// Run executes the model with the given named inputs and returns the named
// outputs. An empty outputNames list requests every model output. Failures
// are reported as *InferenceError and leave the session usable.
func (s *Session) Run(inputs map[string]Value, outputNames ...string) (map[string]*RawValue, error) {
	return s.runWithOptions(0, nil, inputs, outputNames)
}

// RunWithOptions is Run with per-call options (tag, log severity, and the
// termination flag).
func (s *Session) RunWithOptions(opts *RunOptions, inputs map[string]Value, outputNames ...string) (map[string]*RawValue, error) {
	if opts == nil {
		return s.runWithOptions(0, nil, inputs, outputNames)
	}
	opts.mu.Lock()
	handle := opts.handle
	opts.mu.Unlock()
	if handle == 0 {
		return nil, &InferenceError{Cause: ErrRunOptionsDestroyed}
	}
	return s.runWithOptions(handle, opts, inputs, outputNames)
}

func (s *Session) runWithOptions(runOpts uintptr, optsRef *RunOptions, inputs map[string]Value, outputNames []string) (map[string]*RawValue, error) {
	fns := currentAPI()
	if fns == nil {
		return nil, &InferenceError{Cause: ErrNotInitialized}
	}

	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == 0 {
		return nil, ErrSessionClosed
	}

	if err := s.validateInputs(inputs); err != nil {
		return nil, &InferenceError{Cause: err}
	}

	if len(outputNames) == 0 {
		outputNames = make([]string, len(s.outputs))
		for i, spec := range s.outputs {
			outputNames[i] = spec.Name
		}
	} else {
		for _, name := range outputNames {
			if _, ok := s.outputIndex[name]; !ok {
				return nil, &InferenceError{Cause: &NativeError{
					Op: "Run", Code: ErrorCodeInvalidArgument,
					Message: "unknown output name " + name,
				}}
			}
		}
	}

	// Feed inputs in model order so name and value arrays stay aligned.
	inputNames := make([]string, 0, len(inputs))
	inputHandles := make([]uintptr, 0, len(inputs))
	for _, spec := range s.inputs {
		value, ok := inputs[spec.Name]
		if !ok {
			continue
		}
		inputNames = append(inputNames, spec.Name)
		inputHandles = append(inputHandles, value.ortValueHandle())
	}

	inNameBacking, inNamePtrs, inNamesAddr := goStringsToCstrings(inputNames)
	outNameBacking, outNamePtrs, outNamesAddr := goStringsToCstrings(outputNames)

	outputHandles := make([]uintptr, len(outputNames))
	var inputsAddr, outputsAddr uintptr
	if len(inputHandles) > 0 {
		// #nosec G103 -- arrays stay alive through the KeepAlives below.
		inputsAddr = uintptr(unsafe.Pointer(unsafe.SliceData(inputHandles)))
	}
	// #nosec G103
	outputsAddr = uintptr(unsafe.Pointer(unsafe.SliceData(outputHandles)))

	status := fns.run(handle, runOpts,
		inNamesAddr, inputsAddr, uintptr(len(inputHandles)),
		outNamesAddr, uintptr(len(outputNames)), outputsAddr)

	runtime.KeepAlive(inNameBacking)
	runtime.KeepAlive(inNamePtrs)
	runtime.KeepAlive(outNameBacking)
	runtime.KeepAlive(outNamePtrs)
	runtime.KeepAlive(inputHandles)
	runtime.KeepAlive(inputs)
	runtime.KeepAlive(optsRef)

	if err := statusToError("Run", status); err != nil {
		// The engine may have produced some outputs before failing.
		for _, h := range outputHandles {
			if h != 0 {
				fns.releaseValue(h)
			}
		}
		return nil, &InferenceError{Cause: err}
	}

	results := make(map[string]*RawValue, len(outputNames))
	for i, name := range outputNames {
		value, err := wrapValue(fns, outputHandles[i])
		if err != nil {
			for _, v := range results {
				_ = v.Destroy()
			}
			for _, h := range outputHandles[i+1:] {
				if h != 0 {
					fns.releaseValue(h)
				}
			}
			return nil, &InferenceError{Cause: err}
		}
		results[name] = value
	}

	return results, nil
}

// validateInputs checks names, element types, and shapes against the specs
// resolved at build time, so marshaling bugs surface as typed errors instead
// of native failures.
func (s *Session) validateInputs(inputs map[string]Value) error {
	for name, value := range inputs {
		idx, ok := s.inputIndex[name]
		if !ok {
			return &NativeError{Op: "Run", Code: ErrorCodeInvalidArgument, Message: "unknown input name " + name}
		}
		if value == nil || value.ortValueHandle() == 0 {
			return &NativeError{Op: "Run", Code: ErrorCodeInvalidArgument, Message: "input " + name + " has no native value"}
		}

		spec := s.inputs[idx]
		if spec.Type != ONNXTypeTensor {
			continue
		}
		if spec.ElementType != TensorElementDataTypeUndefined && value.ElementType() != spec.ElementType {
			return &TypeMismatchError{Stored: spec.ElementType, Requested: value.ElementType()}
		}
		if len(spec.Shape) > 0 && !shapeMatches(spec.Shape, value.Shape()) {
			return &NativeError{Op: "Run", Code: ErrorCodeInvalidArgument,
				Message: "input " + name + " shape " + value.Shape().String() + " does not match model shape " + spec.Shape.String()}
		}
	}
	return nil
}

// Close releases the native session and drops its environment reference.
// Idempotent; all later operations fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	handle := s.handle
	s.handle = 0
	runtime.SetFinalizer(s, nil)
	s.mu.Unlock()

	if handle == 0 {
		return nil
	}

	if fns := currentAPI(); fns != nil && fns.releaseSession != nil {
		fns.releaseSession(handle)
	}
	releaseEnvironment()
	return nil
}
