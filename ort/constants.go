package ort

const (
	// ORTAPIVersion is the ONNX Runtime C API version this binding requests
	// from OrtApiBase::GetApi. Loading a runtime that cannot serve this
	// version fails fast with UnsupportedAPIVersionError.
	ORTAPIVersion = 17

	// MinimumRuntimeVersion is the oldest runtime release this binding is
	// validated against. Used for diagnostics; the hard gate is the API
	// table version above.
	MinimumRuntimeVersion = "1.14.0"
)

// LoggingLevel represents the logging verbosity level
type LoggingLevel int

const (
	LoggingLevelVerbose LoggingLevel = iota
	LoggingLevelInfo
	LoggingLevelWarning
	LoggingLevelError
	LoggingLevelFatal
)

// ErrorCode represents ONNX Runtime error codes
type ErrorCode int

const (
	ErrorCodeOK ErrorCode = iota
	ErrorCodeFail
	ErrorCodeInvalidArgument
	ErrorCodeNoSuchFile
	ErrorCodeNoModel
	ErrorCodeEngineError
	ErrorCodeRuntimeException
	ErrorCodeInvalidProtobuf
	ErrorCodeModelLoaded
	ErrorCodeNotImplemented
	ErrorCodeInvalidGraph
	ErrorCodeEPFail
	ErrorCodeModelLoadCanceled
	ErrorCodeModelRequiresCompilation
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeOK:
		return "OK"
	case ErrorCodeFail:
		return "FAIL"
	case ErrorCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case ErrorCodeNoSuchFile:
		return "NO_SUCHFILE"
	case ErrorCodeNoModel:
		return "NO_MODEL"
	case ErrorCodeEngineError:
		return "ENGINE_ERROR"
	case ErrorCodeRuntimeException:
		return "RUNTIME_EXCEPTION"
	case ErrorCodeInvalidProtobuf:
		return "INVALID_PROTOBUF"
	case ErrorCodeModelLoaded:
		return "MODEL_LOADED"
	case ErrorCodeNotImplemented:
		return "NOT_IMPLEMENTED"
	case ErrorCodeInvalidGraph:
		return "INVALID_GRAPH"
	case ErrorCodeEPFail:
		return "EP_FAIL"
	case ErrorCodeModelLoadCanceled:
		return "MODEL_LOAD_CANCELED"
	case ErrorCodeModelRequiresCompilation:
		return "MODEL_REQUIRES_COMPILATION"
	default:
		return "UNKNOWN"
	}
}

// TensorElementDataType represents the data type of tensor elements
type TensorElementDataType int

const (
	TensorElementDataTypeUndefined TensorElementDataType = iota
	TensorElementDataTypeFloat
	TensorElementDataTypeUint8
	TensorElementDataTypeInt8
	TensorElementDataTypeUint16
	TensorElementDataTypeInt16
	TensorElementDataTypeInt32
	TensorElementDataTypeInt64
	TensorElementDataTypeString
	TensorElementDataTypeBool
	TensorElementDataTypeFloat16
	TensorElementDataTypeDouble
	TensorElementDataTypeUint32
	TensorElementDataTypeUint64
	TensorElementDataTypeComplex64
	TensorElementDataTypeComplex128
	TensorElementDataTypeBFloat16
	TensorElementDataTypeFloat8E4M3FN
	TensorElementDataTypeFloat8E4M3FNUZ
	TensorElementDataTypeFloat8E5M2
	TensorElementDataTypeFloat8E5M2FNUZ
	TensorElementDataTypeUint4
	TensorElementDataTypeInt4
)

func (t TensorElementDataType) String() string {
	switch t {
	case TensorElementDataTypeFloat:
		return "float32"
	case TensorElementDataTypeUint8:
		return "uint8"
	case TensorElementDataTypeInt8:
		return "int8"
	case TensorElementDataTypeUint16:
		return "uint16"
	case TensorElementDataTypeInt16:
		return "int16"
	case TensorElementDataTypeInt32:
		return "int32"
	case TensorElementDataTypeInt64:
		return "int64"
	case TensorElementDataTypeString:
		return "string"
	case TensorElementDataTypeBool:
		return "bool"
	case TensorElementDataTypeFloat16:
		return "float16"
	case TensorElementDataTypeDouble:
		return "float64"
	case TensorElementDataTypeUint32:
		return "uint32"
	case TensorElementDataTypeUint64:
		return "uint64"
	case TensorElementDataTypeBFloat16:
		return "bfloat16"
	default:
		return "undefined"
	}
}

// AllocatorType represents the type of memory allocator
type AllocatorType int

const (
	AllocatorTypeInvalid AllocatorType = -1
	AllocatorTypeDevice  AllocatorType = 0
	AllocatorTypeArena   AllocatorType = 1
)

// MemType represents memory types for allocated memory
type MemType int

const (
	MemTypeCPUInput  MemType = -2
	MemTypeCPUOutput MemType = -1
	MemTypeCPU       MemType = MemTypeCPUOutput
	MemTypeDefault   MemType = 0
)

// GraphOptimizationLevel represents the level of graph optimizations
type GraphOptimizationLevel int

const (
	GraphOptimizationLevelDisableAll     GraphOptimizationLevel = 0
	GraphOptimizationLevelEnableBasic    GraphOptimizationLevel = 1
	GraphOptimizationLevelEnableExtended GraphOptimizationLevel = 2
	GraphOptimizationLevelEnableAll      GraphOptimizationLevel = 99
)

// ExecutionMode represents the execution mode for the session
type ExecutionMode int

const (
	ExecutionModeSequential ExecutionMode = iota
	ExecutionModeParallel
)

// ONNXType represents the type of an ONNX value
type ONNXType int

const (
	ONNXTypeUnknown ONNXType = iota
	ONNXTypeTensor
	ONNXTypeSequence
	ONNXTypeMap
	ONNXTypeOpaque
	ONNXTypeSparseTensor
	ONNXTypeOptional
)

func (t ONNXType) String() string {
	switch t {
	case ONNXTypeTensor:
		return "tensor"
	case ONNXTypeSequence:
		return "sequence"
	case ONNXTypeMap:
		return "map"
	case ONNXTypeOpaque:
		return "opaque"
	case ONNXTypeSparseTensor:
		return "sparse tensor"
	case ONNXTypeOptional:
		return "optional"
	default:
		return "unknown"
	}
}

// ExecutionProvider identifies a hardware backend the runtime can dispatch
// computation to. CPU is always available as the implicit fallback and never
// needs to appear in a provider list.
type ExecutionProvider string

const (
	ProviderCPU      ExecutionProvider = "CPUExecutionProvider"
	ProviderCUDA     ExecutionProvider = "CUDAExecutionProvider"
	ProviderTensorRT ExecutionProvider = "TensorrtExecutionProvider"
	ProviderCoreML   ExecutionProvider = "CoreMLExecutionProvider"
	ProviderXNNPACK  ExecutionProvider = "XnnpackExecutionProvider"
	ProviderDirectML ExecutionProvider = "DmlExecutionProvider"
)

// appendName is the identifier SessionOptionsAppendExecutionProvider expects
// for providers registered through the generic entry point.
func (p ExecutionProvider) appendName() string {
	switch p {
	case ProviderCoreML:
		return "CoreML"
	case ProviderXNNPACK:
		return "XNNPACK"
	case ProviderDirectML:
		return "DML"
	default:
		return string(p)
	}
}
