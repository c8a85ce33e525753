package ort

import (
	"errors"
	"fmt"
	"strings"
)

// Contract-violation sentinels. These are fast typed errors for caller bugs
// the layer can check cheaply.
var (
	// ErrSessionClosed is returned by every Session operation after Close.
	ErrSessionClosed = errors.New("session is closed")
	// ErrBindingDestroyed is returned by IOBinding operations after Destroy.
	ErrBindingDestroyed = errors.New("io binding is destroyed")
	// ErrValueDestroyed is returned when extraction is attempted on a value
	// whose native handle has already been released.
	ErrValueDestroyed = errors.New("value is destroyed")
	// ErrRunOptionsDestroyed is returned when a Run call references run
	// options whose native handle has already been released.
	ErrRunOptionsDestroyed = errors.New("run options are destroyed")
	// ErrNotInitialized is returned when a native call is attempted before
	// the runtime was loaded.
	ErrNotInitialized = errors.New("onnx runtime is not initialized")
)

// LibraryNotFoundError reports that no loadable runtime shared library could
// be resolved. Attempted lists every candidate path that was tried.
type LibraryNotFoundError struct {
	Attempted []string
	Cause     error
}

func (e *LibraryNotFoundError) Error() string {
	msg := "onnx runtime shared library not found"
	if len(e.Attempted) > 0 {
		msg += " (tried: " + strings.Join(e.Attempted, ", ") + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LibraryNotFoundError) Unwrap() error { return e.Cause }

// SymbolMismatchError reports that the resolved library is missing a
// required entry point, which signals an incompatible runtime build.
type SymbolMismatchError struct {
	Symbol string
	Cause  error
}

func (e *SymbolMismatchError) Error() string {
	msg := fmt.Sprintf("required symbol %q missing from onnx runtime library", e.Symbol)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SymbolMismatchError) Unwrap() error { return e.Cause }

// UnsupportedAPIVersionError reports that the loaded runtime cannot serve
// the C API version this binding was built against.
type UnsupportedAPIVersionError struct {
	Requested      uint32
	RuntimeVersion string
	MinimumRuntime string
}

func (e *UnsupportedAPIVersionError) Error() string {
	return fmt.Sprintf("onnx runtime %q does not provide C API version %d (minimum supported runtime is %s)",
		e.RuntimeVersion, e.Requested, e.MinimumRuntime)
}

// NativeError wraps a non-OK OrtStatus crossing the FFI boundary. The status
// itself is released before the error is constructed, so a NativeError never
// owns a native handle.
type NativeError struct {
	Op      string
	Code    ErrorCode
	Message string
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
}

// ProviderConfigError reports that an available execution provider rejected
// its configuration. This fails the whole session build: the environment has
// the backend, so the option values are a caller mistake.
type ProviderConfigError struct {
	Provider ExecutionProvider
	Cause    error
}

func (e *ProviderConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for execution provider %s: %v", e.Provider, e.Cause)
}

func (e *ProviderConfigError) Unwrap() error { return e.Cause }

// SessionBuildError wraps any failure during session construction: locator,
// environment, provider registration, or the native model load itself. No
// native session handle exists when this error is returned.
type SessionBuildError struct {
	Cause error
}

func (e *SessionBuildError) Error() string {
	return fmt.Sprintf("failed to build session: %v", e.Cause)
}

func (e *SessionBuildError) Unwrap() error { return e.Cause }

// InferenceError reports a per-call failure during Run. The session remains
// usable; the caller may retry with corrected inputs.
type InferenceError struct {
	Cause error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Cause)
}

func (e *InferenceError) Unwrap() error { return e.Cause }

// TypeMismatchError reports an extraction request whose element type does
// not match what the native value stores. Extraction never reinterprets
// bytes; it fails with this error instead.
type TypeMismatchError struct {
	Stored    TensorElementDataType
	Requested TensorElementDataType
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("tensor stores %s elements, extraction requested %s", e.Stored, e.Requested)
}

func errAlreadyLoaded(current string) error {
	return fmt.Errorf("cannot change shared library path after the runtime is loaded (current: %q)", current)
}

// statusToError converts a non-zero OrtStatus into a *NativeError and
// releases the status. Returns nil for a zero (OK) status.
func statusToError(op string, status uintptr) error {
	if status == 0 {
		return nil
	}

	code := ErrorCodeFail
	message := "unknown native error"
	if fns := currentAPI(); fns != nil {
		if fns.getErrorCode != nil {
			code = ErrorCode(fns.getErrorCode(status))
		}
		if fns.getErrorMessage != nil {
			if msgPtr := fns.getErrorMessage(status); msgPtr != 0 {
				message = CstringToGo(msgPtr)
			}
		}
		if fns.releaseStatus != nil {
			fns.releaseStatus(status)
		}
	}

	return &NativeError{Op: op, Code: code, Message: message}
}
