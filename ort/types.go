package ort

// OrtApiBase mirrors the struct returned by the exported OrtGetApiBase
// symbol. GetApi yields the versioned OrtApi function-pointer table.
type OrtApiBase struct {
	GetApi           uintptr
	GetVersionString uintptr
}

// OrtApi mirrors the versioned ONNX Runtime C API function-pointer table.
// Field order must match onnxruntime_c_api.h exactly; the runtime hands us a
// pointer to its own table and every field is read purely by offset. The
// table only ever grows, so it is safe to declare a prefix of it. This
// declaration covers entries through API version 12, which includes every
// function this binding registers.
type OrtApi struct {
	CreateStatus    uintptr
	GetErrorCode    uintptr
	GetErrorMessage uintptr

	CreateEnv                 uintptr
	CreateEnvWithCustomLogger uintptr
	EnableTelemetryEvents     uintptr
	DisableTelemetryEvents    uintptr

	CreateSession          uintptr
	CreateSessionFromArray uintptr
	Run                    uintptr

	CreateSessionOptions             uintptr
	SetOptimizedModelFilePath        uintptr
	CloneSessionOptions              uintptr
	SetSessionExecutionMode          uintptr
	EnableProfiling                  uintptr
	DisableProfiling                 uintptr
	EnableMemPattern                 uintptr
	DisableMemPattern                uintptr
	EnableCpuMemArena                uintptr
	DisableCpuMemArena               uintptr
	SetSessionLogId                  uintptr
	SetSessionLogVerbosityLevel      uintptr
	SetSessionLogSeverityLevel       uintptr
	SetSessionGraphOptimizationLevel uintptr
	SetIntraOpNumThreads             uintptr
	SetInterOpNumThreads             uintptr

	CreateCustomOpDomain     uintptr
	CustomOpDomain_Add       uintptr
	AddCustomOpDomain        uintptr
	RegisterCustomOpsLibrary uintptr

	SessionGetInputCount                     uintptr
	SessionGetOutputCount                    uintptr
	SessionGetOverridableInitializerCount    uintptr
	SessionGetInputTypeInfo                  uintptr
	SessionGetOutputTypeInfo                 uintptr
	SessionGetOverridableInitializerTypeInfo uintptr
	SessionGetInputName                      uintptr
	SessionGetOutputName                     uintptr
	SessionGetOverridableInitializerName     uintptr

	CreateRunOptions                  uintptr
	RunOptionsSetRunLogVerbosityLevel uintptr
	RunOptionsSetRunLogSeverityLevel  uintptr
	RunOptionsSetRunTag               uintptr
	RunOptionsGetRunLogVerbosityLevel uintptr
	RunOptionsGetRunLogSeverityLevel  uintptr
	RunOptionsGetRunTag               uintptr
	RunOptionsSetTerminate            uintptr
	RunOptionsUnsetTerminate          uintptr

	CreateTensorAsOrtValue         uintptr
	CreateTensorWithDataAsOrtValue uintptr
	IsTensor                       uintptr
	GetTensorMutableData           uintptr

	FillStringTensor          uintptr
	GetStringTensorDataLength uintptr
	GetStringTensorContent    uintptr

	CastTypeInfoToTensorInfo     uintptr
	GetOnnxTypeFromTypeInfo      uintptr
	CreateTensorTypeAndShapeInfo uintptr
	SetTensorElementType         uintptr

	SetDimensions              uintptr
	GetTensorElementType       uintptr
	GetDimensionsCount         uintptr
	GetDimensions              uintptr
	GetSymbolicDimensions      uintptr
	GetTensorShapeElementCount uintptr
	GetTensorTypeAndShape      uintptr
	GetTypeInfo                uintptr
	GetValueType               uintptr

	CreateMemoryInfo    uintptr
	CreateCpuMemoryInfo uintptr
	CompareMemoryInfo   uintptr
	MemoryInfoGetName   uintptr
	MemoryInfoGetId     uintptr
	MemoryInfoGetMemType uintptr
	MemoryInfoGetType   uintptr

	AllocatorAlloc                 uintptr
	AllocatorFree                  uintptr
	AllocatorGetInfo               uintptr
	GetAllocatorWithDefaultOptions uintptr
	AddFreeDimensionOverride       uintptr

	GetValue         uintptr
	GetValueCount    uintptr
	CreateValue      uintptr
	CreateOpaqueValue uintptr
	GetOpaqueValue   uintptr

	KernelInfoGetAttribute_float  uintptr
	KernelInfoGetAttribute_int64  uintptr
	KernelInfoGetAttribute_string uintptr
	KernelContext_GetInputCount   uintptr
	KernelContext_GetOutputCount  uintptr
	KernelContext_GetInput        uintptr
	KernelContext_GetOutput       uintptr

	ReleaseEnv                    uintptr
	ReleaseStatus                 uintptr
	ReleaseMemoryInfo             uintptr
	ReleaseSession                uintptr
	ReleaseValue                  uintptr
	ReleaseRunOptions             uintptr
	ReleaseTypeInfo               uintptr
	ReleaseTensorTypeAndShapeInfo uintptr
	ReleaseSessionOptions         uintptr
	ReleaseCustomOpDomain         uintptr

	// API version 2
	GetDenotationFromTypeInfo      uintptr
	CastTypeInfoToMapTypeInfo      uintptr
	CastTypeInfoToSequenceTypeInfo uintptr
	GetMapKeyType                  uintptr
	GetMapValueType                uintptr
	GetSequenceElementType         uintptr
	ReleaseMapTypeInfo             uintptr
	ReleaseSequenceTypeInfo        uintptr
	SessionEndProfiling            uintptr
	SessionGetModelMetadata        uintptr
	ModelMetadataGetProducerName   uintptr
	ModelMetadataGetGraphName      uintptr
	ModelMetadataGetDomain         uintptr
	ModelMetadataGetDescription    uintptr
	ModelMetadataLookupCustomMetadataMap uintptr
	ModelMetadataGetVersion        uintptr
	ReleaseModelMetadata           uintptr

	// API version 3
	CreateEnvWithGlobalThreadPools        uintptr
	DisablePerSessionThreads              uintptr
	CreateThreadingOptions                uintptr
	ReleaseThreadingOptions               uintptr
	ModelMetadataGetCustomMetadataMapKeys uintptr
	AddFreeDimensionOverrideByName        uintptr

	// API version 4
	GetAvailableProviders     uintptr
	ReleaseAvailableProviders uintptr

	// API version 5
	GetStringTensorElementLength   uintptr
	GetStringTensorElement         uintptr
	FillStringTensorElement       uintptr
	AddSessionConfigEntry         uintptr
	CreateAllocator               uintptr
	ReleaseAllocator              uintptr
	RunWithBinding                uintptr
	CreateIoBinding               uintptr
	ReleaseIoBinding              uintptr
	BindInput                     uintptr
	BindOutput                    uintptr
	BindOutputToDevice            uintptr
	GetBoundOutputNames           uintptr
	GetBoundOutputValues          uintptr
	ClearBoundInputs              uintptr
	ClearBoundOutputs             uintptr
	TensorAt                      uintptr
	CreateAndRegisterAllocator    uintptr
	SetLanguageProjection         uintptr
	SessionGetProfilingStartTimeNs uintptr
	SetGlobalIntraOpNumThreads    uintptr
	SetGlobalInterOpNumThreads    uintptr
	SetGlobalSpinControl          uintptr

	// API version 6
	AddInitializer                              uintptr
	CreateEnvWithCustomLoggerAndGlobalThreadPools uintptr
	SessionOptionsAppendExecutionProvider_CUDA  uintptr
	SessionOptionsAppendExecutionProvider_ROCM  uintptr
	SessionOptionsAppendExecutionProvider_OpenVINO uintptr
	SetGlobalDenormalAsZero                     uintptr
	CreateArenaCfg                              uintptr
	ReleaseArenaCfg                             uintptr

	// API version 7
	ModelMetadataGetGraphDescription               uintptr
	SessionOptionsAppendExecutionProvider_TensorRT uintptr
	SetCurrentGpuDeviceId                          uintptr
	GetCurrentGpuDeviceId                          uintptr

	// API version 8
	KernelInfoGetAttributeArray_float uintptr
	KernelInfoGetAttributeArray_int64 uintptr
	CreateArenaCfgV2                  uintptr
	AddRunConfigEntry                 uintptr
	CreatePrepackedWeightsContainer   uintptr
	ReleasePrepackedWeightsContainer  uintptr
	CreateSessionWithPrepackedWeightsContainer          uintptr
	CreateSessionFromArrayWithPrepackedWeightsContainer uintptr

	// API version 9
	SessionOptionsAppendExecutionProvider_TensorRT_V2 uintptr
	CreateTensorRTProviderOptions                     uintptr
	UpdateTensorRTProviderOptions                     uintptr
	GetTensorRTProviderOptionsAsString                uintptr
	ReleaseTensorRTProviderOptions                    uintptr
	EnableOrtCustomOps                                uintptr
	RegisterAllocator                                 uintptr
	UnregisterAllocator                               uintptr
	IsSparseTensor                                    uintptr
	CreateSparseTensorAsOrtValue                      uintptr
	FillSparseTensorCoo                               uintptr
	FillSparseTensorCsr                               uintptr
	FillSparseTensorBlockSparse                       uintptr
	CreateSparseTensorWithValuesAsOrtValue            uintptr
	UseCooIndices                                     uintptr
	UseCsrIndices                                     uintptr
	UseBlockSparseIndices                             uintptr
	GetSparseTensorFormat                             uintptr
	GetSparseTensorValuesTypeAndShape                 uintptr
	GetSparseTensorValues                             uintptr
	GetSparseTensorIndicesTypeShape                   uintptr
	GetSparseTensorIndices                            uintptr

	// API version 10
	HasValue                                 uintptr
	KernelContext_GetGPUComputeStream        uintptr
	GetTensorMemoryInfo                      uintptr
	GetExecutionProviderApi                  uintptr
	SessionOptionsSetCustomCreateThreadFn    uintptr
	SessionOptionsSetCustomThreadCreationOptions uintptr
	SessionOptionsSetCustomJoinThreadFn      uintptr
	SetGlobalCustomCreateThreadFn            uintptr
	SetGlobalCustomThreadCreationOptions     uintptr
	SetGlobalCustomJoinThreadFn              uintptr
	SynchronizeBoundInputs                   uintptr
	SynchronizeBoundOutputs                  uintptr

	// API version 11
	SessionOptionsAppendExecutionProvider_CUDA_V2 uintptr
	CreateCUDAProviderOptions                     uintptr
	UpdateCUDAProviderOptions                     uintptr
	GetCUDAProviderOptionsAsString                uintptr
	ReleaseCUDAProviderOptions                    uintptr
	SessionOptionsAppendExecutionProvider_MIGraphX uintptr

	// API version 12
	AddExternalInitializers               uintptr
	CreateOpAttr                          uintptr
	ReleaseOpAttr                         uintptr
	CreateOp                              uintptr
	InvokeOp                              uintptr
	ReleaseOp                             uintptr
	SessionOptionsAppendExecutionProvider uintptr
	CopyKernelInfo                        uintptr
	ReleaseKernelInfo                     uintptr

	// The table continues in newer runtimes; later entries are not needed
	// by this binding and are intentionally not declared.
}

// Shape represents the shape of a tensor. A dimension of -1 in session
// metadata denotes a symbolic (dynamic) dimension.
type Shape []int64

// NewShape creates a new shape from dimensions
func NewShape(dims ...int64) Shape {
	return Shape(dims)
}

// Value is implemented by every host-side wrapper around a native OrtValue.
// Implementations live in this package; the raw handle never escapes it.
type Value interface {
	// Destroy releases the underlying native value. Safe to call more
	// than once; only the first call releases.
	Destroy() error
	// ElementType reports the tensor element type, or
	// TensorElementDataTypeUndefined for non-tensor values.
	ElementType() TensorElementDataType
	// Shape returns the value's shape. Nil for non-tensor values.
	Shape() Shape

	ortValueHandle() uintptr
}

// IOSpec describes one model input or output slot, resolved once at session
// build time and fixed for the session's lifetime.
type IOSpec struct {
	Name        string
	Type        ONNXType
	ElementType TensorElementDataType
	// Shape of the slot; symbolic dimensions are -1.
	Shape Shape
}

// MemoryInfo describes a device memory placement for values and bindings.
type MemoryInfo struct {
	handle        uintptr
	name          string
	memType       MemType
	allocatorType AllocatorType
	deviceID      int
}

// ModelMetadata carries the descriptive metadata embedded in a model graph.
type ModelMetadata struct {
	ProducerName string
	GraphName    string
	Domain       string
	Description  string
	Version      int64
	CustomKeys   []string
}
