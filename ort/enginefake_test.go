package ort

import (
	"sync"
	"testing"
	"unsafe"
)

// fakeEngine is an in-process stand-in for the native runtime. Every
// function field of ortFuncs is backed by a Go closure operating on handle
// maps, so lifetime rules, error translation, provider fallback, and both
// marshaling directions can be exercised without a shared library.
type fakeEngine struct {
	mu         sync.Mutex
	nextHandle uintptr

	version            string
	availableProviders []string
	providerBacking    [][]byte
	providerPointers   []uintptr

	// Failure injection.
	failCreateSession  bool
	failCUDAOptions    bool
	failTensorRTOpts   bool
	failGenericAppend  bool
	failRun            bool

	appendedProviders []string

	model fakeModel

	statuses     map[uintptr]*fakeStatus
	envs         map[uintptr]bool
	sessionOpts  map[uintptr]bool
	cudaOpts     map[uintptr]bool
	trtOpts      map[uintptr]bool
	sessions     map[uintptr]*fakeSession
	values       map[uintptr]*fakeValue
	typeInfos    map[uintptr]fakeIOSpec
	tensorInfos  map[uintptr]fakeIOSpec
	memInfos     map[uintptr]string
	runOpts      map[uintptr]*fakeRunOptions
	bindings     map[uintptr]*fakeBinding
	metas        map[uintptr]bool
	allocations  map[uintptr]any

	allocatorHandle uintptr
}

type fakeStatus struct {
	code    int32
	message []byte // null-terminated
}

type fakeIOSpec struct {
	name     string
	elemType int32
	shape    []int64
}

type fakeModel struct {
	inputs     []fakeIOSpec
	outputs    []fakeIOSpec
	producer   string
	graphName  string
	domain     string
	desc       string
	version    int64
	customKeys []string
}

type fakeSession struct {
	model fakeModel
}

type fakeValue struct {
	elemType int32
	shape    []int64

	// Zero-copy values reference caller-owned memory; engine-allocated
	// values carry their own storage.
	dataPtr uintptr
	dataLen uintptr
	owned   []byte

	strings []string
}

func (v *fakeValue) bytes() []byte {
	if v.owned != nil {
		return v.owned
	}
	if v.dataPtr == 0 || v.dataLen == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(v.dataPtr)), v.dataLen)
}

type fakeRunOptions struct {
	tag       string
	severity  int32
	terminate bool
}

type fakeBinding struct {
	session      uintptr
	inputOrder   []string
	inputs       map[string]uintptr
	outputOrder  []string
	outputs      map[string]uintptr
	deviceOutput map[string]uintptr
}

func defaultFakeModel() fakeModel {
	return fakeModel{
		inputs:     []fakeIOSpec{{name: "input", elemType: int32(TensorElementDataTypeFloat), shape: []int64{1, 3}}},
		outputs:    []fakeIOSpec{{name: "output", elemType: int32(TensorElementDataTypeFloat), shape: []int64{1, 3}}},
		producer:   "fake-producer",
		graphName:  "fake-graph",
		domain:     "test.domain",
		desc:       "synthetic model",
		version:    7,
		customKeys: []string{"author", "license"},
	}
}

func newFakeEngine() *fakeEngine {
	e := &fakeEngine{
		nextHandle:         100,
		version:            "1.17.3",
		availableProviders: []string{string(ProviderCPU)},
		model:              defaultFakeModel(),
		statuses:           make(map[uintptr]*fakeStatus),
		envs:               make(map[uintptr]bool),
		sessionOpts:        make(map[uintptr]bool),
		cudaOpts:           make(map[uintptr]bool),
		trtOpts:            make(map[uintptr]bool),
		sessions:           make(map[uintptr]*fakeSession),
		values:             make(map[uintptr]*fakeValue),
		typeInfos:          make(map[uintptr]fakeIOSpec),
		tensorInfos:        make(map[uintptr]fakeIOSpec),
		memInfos:           make(map[uintptr]string),
		runOpts:            make(map[uintptr]*fakeRunOptions),
		bindings:           make(map[uintptr]*fakeBinding),
		metas:              make(map[uintptr]bool),
		allocations:        make(map[uintptr]any),
	}
	e.allocatorHandle = e.handle()
	return e
}

func (e *fakeEngine) handle() uintptr {
	e.nextHandle++
	return e.nextHandle
}

func (e *fakeEngine) allocBytes(b []byte) uintptr {
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	e.allocations[ptr] = b
	return ptr
}

func (e *fakeEngine) allocCString(s string) uintptr {
	return e.allocBytes(append([]byte(s), 0))
}

func (e *fakeEngine) allocPointerArray(ptrs []uintptr) uintptr {
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(ptrs)))
	e.allocations[ptr] = ptrs
	return ptr
}

// liveHandles counts everything the harness considers leakable.
func (e *fakeEngine) liveHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.statuses) + len(e.envs) + len(e.sessionOpts) + len(e.cudaOpts) +
		len(e.trtOpts) + len(e.sessions) + len(e.values) + len(e.typeInfos) +
		len(e.memInfos) + len(e.runOpts) + len(e.bindings) + len(e.metas) +
		len(e.allocations)
}

func fakeElemSize(elemType int32) int {
	switch TensorElementDataType(elemType) {
	case TensorElementDataTypeFloat, TensorElementDataTypeInt32, TensorElementDataTypeUint32:
		return 4
	case TensorElementDataTypeDouble, TensorElementDataTypeInt64, TensorElementDataTypeUint64:
		return 8
	case TensorElementDataTypeFloat16, TensorElementDataTypeInt16, TensorElementDataTypeUint16:
		return 2
	default:
		return 1
	}
}

func shapeCount(shape []int64) int {
	count := 1
	for _, d := range shape {
		count *= int(d)
	}
	return count
}

// funcs builds the full typed function table over this engine.
func (e *fakeEngine) funcs() *ortFuncs {
	fns := &ortFuncs{}

	fns.getErrorCode = func(status uintptr) int32 {
		e.mu.Lock()
		defer e.mu.Unlock()
		if s, ok := e.statuses[status]; ok {
			return s.code
		}
		return int32(ErrorCodeFail)
	}
	fns.getErrorMessage = func(status uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if s, ok := e.statuses[status]; ok {
			return uintptr(unsafe.Pointer(unsafe.SliceData(s.message)))
		}
		return 0
	}
	fns.releaseStatus = func(status uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.statuses, status)
	}

	fns.createEnv = func(level int32, logID uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.envs[h] = true
		*out = h
		return 0
	}
	fns.releaseEnv = func(env uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.envs, env)
	}

	fns.createSessionOptions = func(out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.sessionOpts[h] = true
		*out = h
		return 0
	}
	fns.releaseSessionOptions = func(opts uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.sessionOpts, opts)
	}
	ok := func(uintptr, int32) uintptr { return 0 }
	fns.setSessionGraphOptimizationLevel = ok
	fns.setIntraOpNumThreads = ok
	fns.setInterOpNumThreads = ok
	fns.setSessionExecutionMode = ok
	fns.setSessionLogSeverityLevel = ok
	fns.enableCpuMemArena = func(uintptr) uintptr { return 0 }
	fns.disableCpuMemArena = func(uintptr) uintptr { return 0 }
	fns.enableMemPattern = func(uintptr) uintptr { return 0 }
	fns.disableMemPattern = func(uintptr) uintptr { return 0 }
	fns.enableProfiling = func(uintptr, uintptr) uintptr { return 0 }
	fns.addSessionConfigEntry = func(uintptr, uintptr, uintptr) uintptr { return 0 }
	fns.addFreeDimensionOverrideByName = func(uintptr, uintptr, int64) uintptr { return 0 }

	fns.getAvailableProviders = func(out *uintptr, count *int32) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.providerBacking = e.providerBacking[:0]
		e.providerPointers = make([]uintptr, 0, len(e.availableProviders))
		for _, name := range e.availableProviders {
			b := append([]byte(name), 0)
			e.providerBacking = append(e.providerBacking, b)
			e.providerPointers = append(e.providerPointers, uintptr(unsafe.Pointer(unsafe.SliceData(b))))
		}
		if len(e.providerPointers) > 0 {
			*out = uintptr(unsafe.Pointer(unsafe.SliceData(e.providerPointers)))
		}
		*count = int32(len(e.providerPointers))
		return 0
	}
	fns.releaseAvailableProviders = func(names uintptr, count int32) uintptr { return 0 }

	fns.appendExecutionProvider = func(opts uintptr, name uintptr, keys uintptr, values uintptr, n uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.failGenericAppend {
			return e.statusLocked(ErrorCodeInvalidArgument, "bad provider option")
		}
		e.appendedProviders = append(e.appendedProviders, CstringToGo(name))
		return 0
	}

	fns.createCUDAProviderOptions = func(out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.cudaOpts[h] = true
		*out = h
		return 0
	}
	fns.updateCUDAProviderOptions = func(cudaOpts uintptr, keys uintptr, values uintptr, n uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.failCUDAOptions {
			return e.statusLocked(ErrorCodeInvalidArgument, "unknown CUDA option")
		}
		return 0
	}
	fns.releaseCUDAProviderOptions = func(cudaOpts uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.cudaOpts, cudaOpts)
	}
	fns.appendExecutionProviderCUDA = func(opts uintptr, cudaOpts uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.appendedProviders = append(e.appendedProviders, string(ProviderCUDA))
		return 0
	}

	fns.createTensorRTProviderOptions = func(out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.trtOpts[h] = true
		*out = h
		return 0
	}
	fns.updateTensorRTProviderOptions = func(trtOpts uintptr, keys uintptr, values uintptr, n uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.failTensorRTOpts {
			return e.statusLocked(ErrorCodeInvalidArgument, "unknown TensorRT option")
		}
		return 0
	}
	fns.releaseTensorRTProviderOptions = func(trtOpts uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.trtOpts, trtOpts)
	}
	fns.appendExecutionProviderTensorRT = func(opts uintptr, trtOpts uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.appendedProviders = append(e.appendedProviders, string(ProviderTensorRT))
		return 0
	}

	createSession := func(out *uintptr) uintptr {
		if e.failCreateSession {
			return e.statusLocked(ErrorCodeNoSuchFile, "model not found")
		}
		h := e.handle()
		e.sessions[h] = &fakeSession{model: e.model}
		*out = h
		return 0
	}
	fns.createSession = func(env uintptr, modelPath uintptr, opts uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		return createSession(out)
	}
	fns.createSessionFromArray = func(env uintptr, modelData uintptr, modelLen uintptr, opts uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		return createSession(out)
	}
	fns.releaseSession = func(session uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.sessions, session)
	}

	fns.sessionGetInputCount = func(session uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		*out = uintptr(len(e.sessions[session].model.inputs))
		return 0
	}
	fns.sessionGetOutputCount = func(session uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		*out = uintptr(len(e.sessions[session].model.outputs))
		return 0
	}
	fns.sessionGetInputName = func(session uintptr, index uintptr, allocator uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		*out = e.allocCString(e.sessions[session].model.inputs[index].name)
		return 0
	}
	fns.sessionGetOutputName = func(session uintptr, index uintptr, allocator uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		*out = e.allocCString(e.sessions[session].model.outputs[index].name)
		return 0
	}
	fns.sessionGetInputTypeInfo = func(session uintptr, index uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.typeInfos[h] = e.sessions[session].model.inputs[index]
		*out = h
		return 0
	}
	fns.sessionGetOutputTypeInfo = func(session uintptr, index uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.typeInfos[h] = e.sessions[session].model.outputs[index]
		*out = h
		return 0
	}

	fns.sessionGetModelMetadata = func(session uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.metas[h] = true
		*out = h
		return 0
	}
	metaString := func(s string) func(meta uintptr, allocator uintptr, out *uintptr) uintptr {
		return func(meta uintptr, allocator uintptr, out *uintptr) uintptr {
			e.mu.Lock()
			defer e.mu.Unlock()
			*out = e.allocCString(s)
			return 0
		}
	}
	fns.modelMetadataGetProducerName = metaString(e.model.producer)
	fns.modelMetadataGetGraphName = metaString(e.model.graphName)
	fns.modelMetadataGetDomain = metaString(e.model.domain)
	fns.modelMetadataGetDescription = metaString(e.model.desc)
	fns.modelMetadataGetVersion = func(meta uintptr, out *int64) uintptr {
		*out = e.model.version
		return 0
	}
	fns.modelMetadataGetCustomMetadataMapKeys = func(meta uintptr, allocator uintptr, keys *uintptr, count *int64) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if len(e.model.customKeys) == 0 {
			*keys = 0
			*count = 0
			return 0
		}
		ptrs := make([]uintptr, len(e.model.customKeys))
		for i, key := range e.model.customKeys {
			ptrs[i] = e.allocCString(key)
		}
		*keys = e.allocPointerArray(ptrs)
		*count = int64(len(ptrs))
		return 0
	}
	fns.releaseModelMetadata = func(meta uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.metas, meta)
	}

	fns.castTypeInfoToTensorInfo = func(typeInfo uintptr, out *uintptr) uintptr {
		// The tensor info is a view into its parent type info; same handle.
		*out = typeInfo
		return 0
	}
	fns.getOnnxTypeFromTypeInfo = func(typeInfo uintptr, out *int32) uintptr {
		*out = int32(ONNXTypeTensor)
		return 0
	}
	tensorInfoSpec := func(info uintptr) fakeIOSpec {
		if spec, ok := e.typeInfos[info]; ok {
			return spec
		}
		return e.tensorInfos[info]
	}
	fns.getTensorElementType = func(info uintptr, out *int32) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		*out = tensorInfoSpec(info).elemType
		return 0
	}
	fns.getDimensionsCount = func(info uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		*out = uintptr(len(tensorInfoSpec(info).shape))
		return 0
	}
	fns.getDimensions = func(info uintptr, dims *int64, count uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		shape := tensorInfoSpec(info).shape
		out := unsafe.Slice(dims, count)
		copy(out, shape)
		return 0
	}
	fns.getTensorShapeElementCount = func(info uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		*out = uintptr(shapeCount(tensorInfoSpec(info).shape))
		return 0
	}
	fns.getTensorTypeAndShape = func(value uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		v, ok := e.values[value]
		if !ok {
			return e.statusLocked(ErrorCodeInvalidArgument, "no such value")
		}
		h := e.handle()
		e.tensorInfos[h] = fakeIOSpec{elemType: v.elemType, shape: v.shape}
		*out = h
		return 0
	}
	fns.releaseTypeInfo = func(typeInfo uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.typeInfos, typeInfo)
	}
	fns.releaseTensorTypeAndShapeInfo = func(info uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.tensorInfos, info)
	}

	fns.createTensorWithDataAsOrtValue = func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elemType int32, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		var dims []int64
		if shapeLen > 0 {
			dims = append(dims, unsafe.Slice(shape, shapeLen)...)
		}
		h := e.handle()
		e.values[h] = &fakeValue{elemType: elemType, shape: dims, dataPtr: data, dataLen: dataLen}
		*out = h
		return 0
	}
	fns.createTensorAsOrtValue = func(allocator uintptr, shape *int64, shapeLen uintptr, elemType int32, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		var dims []int64
		if shapeLen > 0 {
			dims = append(dims, unsafe.Slice(shape, shapeLen)...)
		}
		v := &fakeValue{elemType: elemType, shape: dims}
		if TensorElementDataType(elemType) != TensorElementDataTypeString {
			v.owned = make([]byte, shapeCount(dims)*fakeElemSize(elemType))
		}
		h := e.handle()
		e.values[h] = v
		*out = h
		return 0
	}
	fns.getTensorMutableData = func(value uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		v, ok := e.values[value]
		if !ok {
			return e.statusLocked(ErrorCodeInvalidArgument, "no such value")
		}
		if v.owned != nil {
			*out = uintptr(unsafe.Pointer(unsafe.SliceData(v.owned)))
		} else {
			*out = v.dataPtr
		}
		return 0
	}
	fns.fillStringTensor = func(value uintptr, strs uintptr, count uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		v, ok := e.values[value]
		if !ok {
			return e.statusLocked(ErrorCodeInvalidArgument, "no such value")
		}
		ptrs := unsafe.Slice((*uintptr)(unsafe.Pointer(strs)), count)
		v.strings = make([]string, count)
		for i, ptr := range ptrs {
			v.strings[i] = CstringToGo(ptr)
		}
		return 0
	}
	fns.getStringTensorDataLength = func(value uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		var total uintptr
		for _, s := range e.values[value].strings {
			total += uintptr(len(s))
		}
		*out = total
		return 0
	}
	fns.getStringTensorContent = func(value uintptr, buf uintptr, bufLen uintptr, offsets *uintptr, offsetCount uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		v := e.values[value]
		offs := unsafe.Slice(offsets, offsetCount)
		var dst []byte
		if bufLen > 0 {
			dst = unsafe.Slice((*byte)(unsafe.Pointer(buf)), bufLen)
		}
		var cursor uintptr
		for i, s := range v.strings {
			offs[i] = cursor
			copy(dst[cursor:], s)
			cursor += uintptr(len(s))
		}
		return 0
	}
	fns.getValueType = func(value uintptr, out *int32) uintptr {
		*out = int32(ONNXTypeTensor)
		return 0
	}
	fns.releaseValue = func(value uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.values, value)
	}

	fns.createMemoryInfo = func(name uintptr, allocType int32, deviceID int32, memType int32, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.memInfos[h] = CstringToGo(name)
		*out = h
		return 0
	}
	fns.releaseMemoryInfo = func(memInfo uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.memInfos, memInfo)
	}
	fns.getAllocatorWithDefaultOptions = func(out *uintptr) uintptr {
		*out = e.allocatorHandle
		return 0
	}
	fns.allocatorFree = func(allocator uintptr, ptr uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.allocations, ptr)
		return 0
	}

	fns.createRunOptions = func(out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.runOpts[h] = &fakeRunOptions{}
		*out = h
		return 0
	}
	fns.releaseRunOptions = func(opts uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.runOpts, opts)
	}
	fns.runOptionsSetRunTag = func(opts uintptr, tag uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if o, ok := e.runOpts[opts]; ok {
			o.tag = CstringToGo(tag)
		}
		return 0
	}
	fns.runOptionsSetRunLogSeverityLevel = func(opts uintptr, level int32) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if o, ok := e.runOpts[opts]; ok {
			o.severity = level
		}
		return 0
	}
	fns.runOptionsSetTerminate = func(opts uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if o, ok := e.runOpts[opts]; ok {
			o.terminate = true
		}
		return 0
	}
	fns.runOptionsUnsetTerminate = func(opts uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if o, ok := e.runOpts[opts]; ok {
			o.terminate = false
		}
		return 0
	}

	// Run echoes the first input's current bytes into every requested
	// output, reading the input backing live so zero-copy semantics are
	// observable from tests.
	fns.run = func(session uintptr, runOptions uintptr, inputNames uintptr, inputs uintptr, inputCount uintptr, outputNames uintptr, outputCount uintptr, outputs uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.failRun {
			return e.statusLocked(ErrorCodeRuntimeException, "synthetic run failure")
		}
		if o, ok := e.runOpts[runOptions]; ok && o.terminate {
			return e.statusLocked(ErrorCodeFail, "run terminated")
		}
		if inputCount == 0 {
			return e.statusLocked(ErrorCodeInvalidArgument, "no inputs")
		}

		inputHandles := unsafe.Slice((*uintptr)(unsafe.Pointer(inputs)), inputCount)
		first, ok := e.values[inputHandles[0]]
		if !ok {
			return e.statusLocked(ErrorCodeInvalidArgument, "unknown input value")
		}

		outHandles := unsafe.Slice((*uintptr)(unsafe.Pointer(outputs)), outputCount)
		for i := range outHandles {
			v := &fakeValue{
				elemType: first.elemType,
				shape:    append([]int64(nil), first.shape...),
				owned:    append([]byte(nil), first.bytes()...),
				strings:  append([]string(nil), first.strings...),
			}
			h := e.handle()
			e.values[h] = v
			outHandles[i] = h
		}
		return 0
	}

	fns.createIoBinding = func(session uintptr, out *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		h := e.handle()
		e.bindings[h] = &fakeBinding{
			session:      session,
			inputs:       make(map[string]uintptr),
			outputs:      make(map[string]uintptr),
			deviceOutput: make(map[string]uintptr),
		}
		*out = h
		return 0
	}
	fns.releaseIoBinding = func(binding uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.bindings, binding)
	}
	fns.bindInput = func(binding uintptr, name uintptr, value uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		b := e.bindings[binding]
		n := CstringToGo(name)
		if _, exists := b.inputs[n]; !exists {
			b.inputOrder = append(b.inputOrder, n)
		}
		b.inputs[n] = value
		return 0
	}
	fns.bindOutput = func(binding uintptr, name uintptr, value uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		b := e.bindings[binding]
		n := CstringToGo(name)
		if _, exists := b.outputs[n]; !exists {
			b.outputOrder = append(b.outputOrder, n)
		}
		b.outputs[n] = value
		return 0
	}
	fns.bindOutputToDevice = func(binding uintptr, name uintptr, memInfo uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		b := e.bindings[binding]
		n := CstringToGo(name)
		if _, exists := b.deviceOutput[n]; !exists {
			b.outputOrder = append(b.outputOrder, n)
		}
		b.deviceOutput[n] = memInfo
		return 0
	}
	fns.getBoundOutputNames = func(binding uintptr, allocator uintptr, buffer *uintptr, lengths *uintptr, count *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		b := e.bindings[binding]
		if len(b.outputOrder) == 0 {
			*buffer, *lengths, *count = 0, 0, 0
			return 0
		}
		var packed []byte
		sizes := make([]uintptr, 0, len(b.outputOrder))
		for _, name := range b.outputOrder {
			packed = append(packed, name...)
			sizes = append(sizes, uintptr(len(name)))
		}
		*buffer = e.allocBytes(packed)
		*lengths = e.allocPointerArray(sizes)
		*count = uintptr(len(sizes))
		return 0
	}
	fns.getBoundOutputValues = func(binding uintptr, allocator uintptr, values *uintptr, count *uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		b := e.bindings[binding]
		if len(b.outputOrder) == 0 {
			*values, *count = 0, 0
			return 0
		}
		handles := make([]uintptr, 0, len(b.outputOrder))
		for _, name := range b.outputOrder {
			bound, ok := e.values[b.outputs[name]]
			if !ok {
				continue
			}
			v := &fakeValue{
				elemType: bound.elemType,
				shape:    append([]int64(nil), bound.shape...),
				owned:    append([]byte(nil), bound.bytes()...),
			}
			h := e.handle()
			e.values[h] = v
			handles = append(handles, h)
		}
		*values = e.allocPointerArray(handles)
		*count = uintptr(len(handles))
		return 0
	}
	fns.clearBoundInputs = func(binding uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		b := e.bindings[binding]
		b.inputs = make(map[string]uintptr)
		b.inputOrder = nil
	}
	fns.clearBoundOutputs = func(binding uintptr) {
		e.mu.Lock()
		defer e.mu.Unlock()
		b := e.bindings[binding]
		b.outputs = make(map[string]uintptr)
		b.deviceOutput = make(map[string]uintptr)
		b.outputOrder = nil
	}
	// RunWithBinding writes the first bound input's current bytes into every
	// bound output in place.
	fns.runWithBinding = func(session uintptr, runOptions uintptr, binding uintptr) uintptr {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.failRun {
			return e.statusLocked(ErrorCodeRuntimeException, "synthetic run failure")
		}
		b := e.bindings[binding]
		if len(b.inputOrder) == 0 {
			return e.statusLocked(ErrorCodeInvalidArgument, "no bound inputs")
		}
		first := e.values[b.inputs[b.inputOrder[0]]]
		src := first.bytes()
		for _, name := range b.outputOrder {
			outHandle, ok := b.outputs[name]
			if !ok {
				continue
			}
			dst := e.values[outHandle].bytes()
			copy(dst, src)
		}
		return 0
	}

	return fns
}

// statusLocked creates a status while e.mu is already held.
func (e *fakeEngine) statusLocked(code ErrorCode, message string) uintptr {
	h := e.handle()
	e.statuses[h] = &fakeStatus{code: int32(code), message: append([]byte(message), 0)}
	return h
}

// resetRuntimeState restores the package globals between tests.
func resetRuntimeState() {
	mu.Lock()
	defer mu.Unlock()
	libPath = ""
	libHandle = 0
	runtimeVersion = ""
	runtimeLoaded = false
	apiTable.Store(nil)
	ortEnv = 0
	envRefs = 0
	envPinned = false
	logLevel = LoggingLevelWarning
	envLogID = "ortbind"
	acquireRuntime = loadAndBindRuntime
}

// installFakeEngine wires a fresh fake engine in as the process runtime and
// registers cleanup restoring the real loader.
func installFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	resetRuntimeState()

	eng := newFakeEngine()
	acquireRuntime = func(explicitPath string) (*ortFuncs, string, uintptr, error) {
		return eng.funcs(), eng.version, 1, nil
	}
	t.Cleanup(resetRuntimeState)
	return eng
}
