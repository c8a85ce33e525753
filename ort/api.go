package ort

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// ortFuncs caches typed Go bindings for every ONNX Runtime C API function
// this package calls. It is populated once per process when the runtime is
// loaded; tests substitute a hand-built instance to exercise the layer
// against a synthetic engine.
type ortFuncs struct {
	// Status and error handling
	getErrorCode    func(status uintptr) int32
	getErrorMessage func(status uintptr) uintptr
	releaseStatus   func(status uintptr)

	// Environment
	createEnv  func(level int32, logID uintptr, out *uintptr) uintptr
	releaseEnv func(env uintptr)

	// Session options
	createSessionOptions             func(out *uintptr) uintptr
	releaseSessionOptions            func(opts uintptr)
	setSessionGraphOptimizationLevel func(opts uintptr, level int32) uintptr
	setIntraOpNumThreads             func(opts uintptr, n int32) uintptr
	setInterOpNumThreads             func(opts uintptr, n int32) uintptr
	setSessionExecutionMode          func(opts uintptr, mode int32) uintptr
	setSessionLogSeverityLevel       func(opts uintptr, level int32) uintptr
	enableCpuMemArena                func(opts uintptr) uintptr
	disableCpuMemArena               func(opts uintptr) uintptr
	enableMemPattern                 func(opts uintptr) uintptr
	disableMemPattern                func(opts uintptr) uintptr
	enableProfiling                  func(opts uintptr, prefix uintptr) uintptr
	addSessionConfigEntry            func(opts uintptr, key uintptr, value uintptr) uintptr
	addFreeDimensionOverrideByName   func(opts uintptr, name uintptr, value int64) uintptr

	// Execution providers
	getAvailableProviders     func(out *uintptr, count *int32) uintptr
	releaseAvailableProviders func(names uintptr, count int32) uintptr
	appendExecutionProvider   func(opts uintptr, name uintptr, keys uintptr, values uintptr, n uintptr) uintptr

	createCUDAProviderOptions  func(out *uintptr) uintptr
	updateCUDAProviderOptions  func(cudaOpts uintptr, keys uintptr, values uintptr, n uintptr) uintptr
	releaseCUDAProviderOptions func(cudaOpts uintptr)
	appendExecutionProviderCUDA func(opts uintptr, cudaOpts uintptr) uintptr

	createTensorRTProviderOptions  func(out *uintptr) uintptr
	updateTensorRTProviderOptions  func(trtOpts uintptr, keys uintptr, values uintptr, n uintptr) uintptr
	releaseTensorRTProviderOptions func(trtOpts uintptr)
	appendExecutionProviderTensorRT func(opts uintptr, trtOpts uintptr) uintptr

	// Session
	createSession          func(env uintptr, modelPath uintptr, opts uintptr, out *uintptr) uintptr
	createSessionFromArray func(env uintptr, modelData uintptr, modelLen uintptr, opts uintptr, out *uintptr) uintptr
	releaseSession         func(session uintptr)
	run                    func(session uintptr, runOpts uintptr, inputNames uintptr, inputs uintptr, inputCount uintptr, outputNames uintptr, outputCount uintptr, outputs uintptr) uintptr

	sessionGetInputCount     func(session uintptr, out *uintptr) uintptr
	sessionGetOutputCount    func(session uintptr, out *uintptr) uintptr
	sessionGetInputName      func(session uintptr, index uintptr, allocator uintptr, out *uintptr) uintptr
	sessionGetOutputName     func(session uintptr, index uintptr, allocator uintptr, out *uintptr) uintptr
	sessionGetInputTypeInfo  func(session uintptr, index uintptr, out *uintptr) uintptr
	sessionGetOutputTypeInfo func(session uintptr, index uintptr, out *uintptr) uintptr

	// Model metadata
	sessionGetModelMetadata               func(session uintptr, out *uintptr) uintptr
	modelMetadataGetProducerName          func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetGraphName             func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetDomain                func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetDescription           func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetVersion               func(meta uintptr, out *int64) uintptr
	modelMetadataGetCustomMetadataMapKeys func(meta uintptr, allocator uintptr, keys *uintptr, count *int64) uintptr
	releaseModelMetadata                  func(meta uintptr)

	// Type and shape introspection
	castTypeInfoToTensorInfo   func(typeInfo uintptr, out *uintptr) uintptr
	getOnnxTypeFromTypeInfo    func(typeInfo uintptr, out *int32) uintptr
	getTensorElementType       func(info uintptr, out *int32) uintptr
	getDimensionsCount         func(info uintptr, out *uintptr) uintptr
	getDimensions              func(info uintptr, dims *int64, count uintptr) uintptr
	getTensorShapeElementCount func(info uintptr, out *uintptr) uintptr
	getTensorTypeAndShape      func(value uintptr, out *uintptr) uintptr
	releaseTypeInfo            func(typeInfo uintptr)
	releaseTensorTypeAndShapeInfo func(info uintptr)

	// Values and tensors
	createTensorWithDataAsOrtValue func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elemType int32, out *uintptr) uintptr
	createTensorAsOrtValue         func(allocator uintptr, shape *int64, shapeLen uintptr, elemType int32, out *uintptr) uintptr
	getTensorMutableData           func(value uintptr, out *uintptr) uintptr
	fillStringTensor               func(value uintptr, strs uintptr, count uintptr) uintptr
	getStringTensorDataLength      func(value uintptr, out *uintptr) uintptr
	getStringTensorContent         func(value uintptr, buf uintptr, bufLen uintptr, offsets *uintptr, offsetCount uintptr) uintptr
	getValueType                   func(value uintptr, out *int32) uintptr
	releaseValue                   func(value uintptr)

	// Memory
	createMemoryInfo               func(name uintptr, allocType int32, deviceID int32, memType int32, out *uintptr) uintptr
	releaseMemoryInfo              func(memInfo uintptr)
	getAllocatorWithDefaultOptions func(out *uintptr) uintptr
	allocatorFree                  func(allocator uintptr, ptr uintptr) uintptr

	// Run options
	createRunOptions                 func(out *uintptr) uintptr
	releaseRunOptions                func(opts uintptr)
	runOptionsSetRunTag              func(opts uintptr, tag uintptr) uintptr
	runOptionsSetRunLogSeverityLevel func(opts uintptr, level int32) uintptr
	runOptionsSetTerminate           func(opts uintptr) uintptr
	runOptionsUnsetTerminate         func(opts uintptr) uintptr

	// IO binding
	createIoBinding      func(session uintptr, out *uintptr) uintptr
	releaseIoBinding     func(binding uintptr)
	bindInput            func(binding uintptr, name uintptr, value uintptr) uintptr
	bindOutput           func(binding uintptr, name uintptr, value uintptr) uintptr
	bindOutputToDevice   func(binding uintptr, name uintptr, memInfo uintptr) uintptr
	getBoundOutputNames  func(binding uintptr, allocator uintptr, buffer *uintptr, lengths *uintptr, count *uintptr) uintptr
	getBoundOutputValues func(binding uintptr, allocator uintptr, values *uintptr, count *uintptr) uintptr
	clearBoundInputs     func(binding uintptr)
	clearBoundOutputs    func(binding uintptr)
	runWithBinding       func(session uintptr, runOpts uintptr, binding uintptr) uintptr
}

// bindAPIBase resolves the versioned API table from an OrtApiBase and binds
// the typed function set. Shared by the dynamic and static build modes.
func bindAPIBase(base *OrtApiBase) (*ortFuncs, string, error) {
	var getVersionString func() uintptr
	purego.RegisterFunc(&getVersionString, base.GetVersionString)
	version := CstringToGo(getVersionString())

	var getApi func(version uint32) uintptr
	purego.RegisterFunc(&getApi, base.GetApi)
	tablePtr := getApi(ORTAPIVersion)
	if tablePtr == 0 {
		return nil, version, &UnsupportedAPIVersionError{
			Requested:      ORTAPIVersion,
			RuntimeVersion: version,
			MinimumRuntime: MinimumRuntimeVersion,
		}
	}

	// #nosec G103 -- GetApi returns a pointer to the runtime's static
	// function table, valid for the life of the process.
	api := (*OrtApi)(unsafe.Pointer(tablePtr))
	fns, err := bindOrtFuncs(api)
	if err != nil {
		return nil, version, err
	}
	return fns, version, nil
}

// bindOrtFuncs registers typed bindings against the runtime's function
// table. A zero table entry for any required function means the loaded
// library predates the requested API version.
func bindOrtFuncs(api *OrtApi) (*ortFuncs, error) {
	fns := &ortFuncs{}

	type binding struct {
		target any
		addr   uintptr
		name   string
	}

	bindings := []binding{
		{&fns.getErrorCode, api.GetErrorCode, "GetErrorCode"},
		{&fns.getErrorMessage, api.GetErrorMessage, "GetErrorMessage"},
		{&fns.releaseStatus, api.ReleaseStatus, "ReleaseStatus"},

		{&fns.createEnv, api.CreateEnv, "CreateEnv"},
		{&fns.releaseEnv, api.ReleaseEnv, "ReleaseEnv"},

		{&fns.createSessionOptions, api.CreateSessionOptions, "CreateSessionOptions"},
		{&fns.releaseSessionOptions, api.ReleaseSessionOptions, "ReleaseSessionOptions"},
		{&fns.setSessionGraphOptimizationLevel, api.SetSessionGraphOptimizationLevel, "SetSessionGraphOptimizationLevel"},
		{&fns.setIntraOpNumThreads, api.SetIntraOpNumThreads, "SetIntraOpNumThreads"},
		{&fns.setInterOpNumThreads, api.SetInterOpNumThreads, "SetInterOpNumThreads"},
		{&fns.setSessionExecutionMode, api.SetSessionExecutionMode, "SetSessionExecutionMode"},
		{&fns.setSessionLogSeverityLevel, api.SetSessionLogSeverityLevel, "SetSessionLogSeverityLevel"},
		{&fns.enableCpuMemArena, api.EnableCpuMemArena, "EnableCpuMemArena"},
		{&fns.disableCpuMemArena, api.DisableCpuMemArena, "DisableCpuMemArena"},
		{&fns.enableMemPattern, api.EnableMemPattern, "EnableMemPattern"},
		{&fns.disableMemPattern, api.DisableMemPattern, "DisableMemPattern"},
		{&fns.enableProfiling, api.EnableProfiling, "EnableProfiling"},
		{&fns.addSessionConfigEntry, api.AddSessionConfigEntry, "AddSessionConfigEntry"},
		{&fns.addFreeDimensionOverrideByName, api.AddFreeDimensionOverrideByName, "AddFreeDimensionOverrideByName"},

		{&fns.getAvailableProviders, api.GetAvailableProviders, "GetAvailableProviders"},
		{&fns.releaseAvailableProviders, api.ReleaseAvailableProviders, "ReleaseAvailableProviders"},
		{&fns.appendExecutionProvider, api.SessionOptionsAppendExecutionProvider, "SessionOptionsAppendExecutionProvider"},

		{&fns.createCUDAProviderOptions, api.CreateCUDAProviderOptions, "CreateCUDAProviderOptions"},
		{&fns.updateCUDAProviderOptions, api.UpdateCUDAProviderOptions, "UpdateCUDAProviderOptions"},
		{&fns.releaseCUDAProviderOptions, api.ReleaseCUDAProviderOptions, "ReleaseCUDAProviderOptions"},
		{&fns.appendExecutionProviderCUDA, api.SessionOptionsAppendExecutionProvider_CUDA_V2, "SessionOptionsAppendExecutionProvider_CUDA_V2"},

		{&fns.createTensorRTProviderOptions, api.CreateTensorRTProviderOptions, "CreateTensorRTProviderOptions"},
		{&fns.updateTensorRTProviderOptions, api.UpdateTensorRTProviderOptions, "UpdateTensorRTProviderOptions"},
		{&fns.releaseTensorRTProviderOptions, api.ReleaseTensorRTProviderOptions, "ReleaseTensorRTProviderOptions"},
		{&fns.appendExecutionProviderTensorRT, api.SessionOptionsAppendExecutionProvider_TensorRT_V2, "SessionOptionsAppendExecutionProvider_TensorRT_V2"},

		{&fns.createSession, api.CreateSession, "CreateSession"},
		{&fns.createSessionFromArray, api.CreateSessionFromArray, "CreateSessionFromArray"},
		{&fns.releaseSession, api.ReleaseSession, "ReleaseSession"},
		{&fns.run, api.Run, "Run"},

		{&fns.sessionGetInputCount, api.SessionGetInputCount, "SessionGetInputCount"},
		{&fns.sessionGetOutputCount, api.SessionGetOutputCount, "SessionGetOutputCount"},
		{&fns.sessionGetInputName, api.SessionGetInputName, "SessionGetInputName"},
		{&fns.sessionGetOutputName, api.SessionGetOutputName, "SessionGetOutputName"},
		{&fns.sessionGetInputTypeInfo, api.SessionGetInputTypeInfo, "SessionGetInputTypeInfo"},
		{&fns.sessionGetOutputTypeInfo, api.SessionGetOutputTypeInfo, "SessionGetOutputTypeInfo"},

		{&fns.sessionGetModelMetadata, api.SessionGetModelMetadata, "SessionGetModelMetadata"},
		{&fns.modelMetadataGetProducerName, api.ModelMetadataGetProducerName, "ModelMetadataGetProducerName"},
		{&fns.modelMetadataGetGraphName, api.ModelMetadataGetGraphName, "ModelMetadataGetGraphName"},
		{&fns.modelMetadataGetDomain, api.ModelMetadataGetDomain, "ModelMetadataGetDomain"},
		{&fns.modelMetadataGetDescription, api.ModelMetadataGetDescription, "ModelMetadataGetDescription"},
		{&fns.modelMetadataGetVersion, api.ModelMetadataGetVersion, "ModelMetadataGetVersion"},
		{&fns.modelMetadataGetCustomMetadataMapKeys, api.ModelMetadataGetCustomMetadataMapKeys, "ModelMetadataGetCustomMetadataMapKeys"},
		{&fns.releaseModelMetadata, api.ReleaseModelMetadata, "ReleaseModelMetadata"},

		{&fns.castTypeInfoToTensorInfo, api.CastTypeInfoToTensorInfo, "CastTypeInfoToTensorInfo"},
		{&fns.getOnnxTypeFromTypeInfo, api.GetOnnxTypeFromTypeInfo, "GetOnnxTypeFromTypeInfo"},
		{&fns.getTensorElementType, api.GetTensorElementType, "GetTensorElementType"},
		{&fns.getDimensionsCount, api.GetDimensionsCount, "GetDimensionsCount"},
		{&fns.getDimensions, api.GetDimensions, "GetDimensions"},
		{&fns.getTensorShapeElementCount, api.GetTensorShapeElementCount, "GetTensorShapeElementCount"},
		{&fns.getTensorTypeAndShape, api.GetTensorTypeAndShape, "GetTensorTypeAndShape"},
		{&fns.releaseTypeInfo, api.ReleaseTypeInfo, "ReleaseTypeInfo"},
		{&fns.releaseTensorTypeAndShapeInfo, api.ReleaseTensorTypeAndShapeInfo, "ReleaseTensorTypeAndShapeInfo"},

		{&fns.createTensorWithDataAsOrtValue, api.CreateTensorWithDataAsOrtValue, "CreateTensorWithDataAsOrtValue"},
		{&fns.createTensorAsOrtValue, api.CreateTensorAsOrtValue, "CreateTensorAsOrtValue"},
		{&fns.getTensorMutableData, api.GetTensorMutableData, "GetTensorMutableData"},
		{&fns.fillStringTensor, api.FillStringTensor, "FillStringTensor"},
		{&fns.getStringTensorDataLength, api.GetStringTensorDataLength, "GetStringTensorDataLength"},
		{&fns.getStringTensorContent, api.GetStringTensorContent, "GetStringTensorContent"},
		{&fns.getValueType, api.GetValueType, "GetValueType"},
		{&fns.releaseValue, api.ReleaseValue, "ReleaseValue"},

		{&fns.createMemoryInfo, api.CreateMemoryInfo, "CreateMemoryInfo"},
		{&fns.releaseMemoryInfo, api.ReleaseMemoryInfo, "ReleaseMemoryInfo"},
		{&fns.getAllocatorWithDefaultOptions, api.GetAllocatorWithDefaultOptions, "GetAllocatorWithDefaultOptions"},
		{&fns.allocatorFree, api.AllocatorFree, "AllocatorFree"},

		{&fns.createRunOptions, api.CreateRunOptions, "CreateRunOptions"},
		{&fns.releaseRunOptions, api.ReleaseRunOptions, "ReleaseRunOptions"},
		{&fns.runOptionsSetRunTag, api.RunOptionsSetRunTag, "RunOptionsSetRunTag"},
		{&fns.runOptionsSetRunLogSeverityLevel, api.RunOptionsSetRunLogSeverityLevel, "RunOptionsSetRunLogSeverityLevel"},
		{&fns.runOptionsSetTerminate, api.RunOptionsSetTerminate, "RunOptionsSetTerminate"},
		{&fns.runOptionsUnsetTerminate, api.RunOptionsUnsetTerminate, "RunOptionsUnsetTerminate"},

		{&fns.createIoBinding, api.CreateIoBinding, "CreateIoBinding"},
		{&fns.releaseIoBinding, api.ReleaseIoBinding, "ReleaseIoBinding"},
		{&fns.bindInput, api.BindInput, "BindInput"},
		{&fns.bindOutput, api.BindOutput, "BindOutput"},
		{&fns.bindOutputToDevice, api.BindOutputToDevice, "BindOutputToDevice"},
		{&fns.getBoundOutputNames, api.GetBoundOutputNames, "GetBoundOutputNames"},
		{&fns.getBoundOutputValues, api.GetBoundOutputValues, "GetBoundOutputValues"},
		{&fns.clearBoundInputs, api.ClearBoundInputs, "ClearBoundInputs"},
		{&fns.clearBoundOutputs, api.ClearBoundOutputs, "ClearBoundOutputs"},
		{&fns.runWithBinding, api.RunWithBinding, "RunWithBinding"},
	}

	for _, b := range bindings {
		if b.addr == 0 {
			return nil, &SymbolMismatchError{Symbol: "OrtApi::" + b.name}
		}
		purego.RegisterFunc(b.target, b.addr)
	}

	return fns, nil
}
