package ort

import (
	"runtime"
	"sync"
)

// RunOptions carries per-call settings for Session.RunWithOptions. The
// termination flag may be set from another goroutine while a run is in
// flight; the engine checks it between graph nodes and aborts the call.
type RunOptions struct {
	mu     sync.Mutex
	handle uintptr
}

// NewRunOptions creates an empty run options handle. The runtime is loaded
// on demand.
func NewRunOptions() (*RunOptions, error) {
	mu.Lock()
	fns, err := ensureRuntimeLocked()
	mu.Unlock()
	if err != nil {
		return nil, err
	}

	var handle uintptr
	status := fns.createRunOptions(&handle)
	if err := statusToError("CreateRunOptions", status); err != nil {
		return nil, err
	}

	r := &RunOptions{handle: handle}
	runtime.SetFinalizer(r, func(r *RunOptions) {
		_ = r.Destroy()
	})
	return r, nil
}

// SetTag attaches an identifier that the engine includes in its log lines
// for runs using these options.
func (r *RunOptions) SetTag(tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == 0 {
		return ErrRunOptionsDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	tagBytes, tagPtr := GoToCstring(tag)
	status := fns.runOptionsSetRunTag(r.handle, tagPtr)
	runtime.KeepAlive(tagBytes)
	return statusToError("RunOptionsSetRunTag", status)
}

// SetLogSeverity overrides the log severity for runs using these options.
func (r *RunOptions) SetLogSeverity(level LoggingLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == 0 {
		return ErrRunOptionsDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	status := fns.runOptionsSetRunLogSeverityLevel(r.handle, int32(level))
	return statusToError("RunOptionsSetRunLogSeverityLevel", status)
}

// Terminate requests that in-flight runs using these options abort at the
// next node boundary. Safe to call concurrently with Run.
func (r *RunOptions) Terminate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == 0 {
		return ErrRunOptionsDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	status := fns.runOptionsSetTerminate(r.handle)
	return statusToError("RunOptionsSetTerminate", status)
}

// ClearTerminate re-arms the options after Terminate so they can be reused.
func (r *RunOptions) ClearTerminate() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handle == 0 {
		return ErrRunOptionsDestroyed
	}

	fns := currentAPI()
	if fns == nil {
		return ErrNotInitialized
	}

	status := fns.runOptionsUnsetTerminate(r.handle)
	return statusToError("RunOptionsUnsetTerminate", status)
}

// Destroy releases the native handle. Safe to call more than once.
func (r *RunOptions) Destroy() error {
	r.mu.Lock()
	handle := r.handle
	r.handle = 0
	runtime.SetFinalizer(r, nil)
	r.mu.Unlock()

	if handle != 0 {
		if fns := currentAPI(); fns != nil && fns.releaseRunOptions != nil {
			fns.releaseRunOptions(handle)
		}
	}
	return nil
}
