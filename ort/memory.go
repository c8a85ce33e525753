package ort

import (
	"runtime"
	"sync"
)

// CreateMemoryInfo creates a memory placement descriptor.
// Maps to OrtApi::CreateMemoryInfo.
func CreateMemoryInfo(name string, allocatorType AllocatorType, deviceID int, memType MemType) (*MemoryInfo, error) {
	fns := currentAPI()
	if fns == nil {
		return nil, ErrNotInitialized
	}

	nameBytes, namePtr := GoToCstring(name)
	var handle uintptr
	// #nosec G115 -- deviceID is validated by the runtime.
	status := fns.createMemoryInfo(namePtr, int32(allocatorType), int32(deviceID), int32(memType), &handle)
	runtime.KeepAlive(nameBytes)
	if err := statusToError("CreateMemoryInfo", status); err != nil {
		return nil, err
	}

	memInfo := &MemoryInfo{
		handle:        handle,
		name:          name,
		memType:       memType,
		allocatorType: allocatorType,
		deviceID:      deviceID,
	}

	// Safety net against callers forgetting Destroy.
	runtime.SetFinalizer(memInfo, func(m *MemoryInfo) {
		_ = m.Destroy()
	})

	return memInfo, nil
}

// CreateCPUMemoryInfo creates a memory descriptor for host CPU memory, the
// most common placement.
func CreateCPUMemoryInfo(allocatorType AllocatorType, memType MemType) (*MemoryInfo, error) {
	return CreateMemoryInfo("Cpu", allocatorType, 0, memType)
}

var memInfoMu sync.Mutex

// Destroy releases the native memory info. Safe to call more than once.
func (m *MemoryInfo) Destroy() error {
	memInfoMu.Lock()
	defer memInfoMu.Unlock()

	if m.handle == 0 {
		return nil
	}

	if fns := currentAPI(); fns != nil && fns.releaseMemoryInfo != nil {
		fns.releaseMemoryInfo(m.handle)
	}

	m.handle = 0
	runtime.SetFinalizer(m, nil)
	return nil
}

// Name returns the allocator name this placement was created with.
func (m *MemoryInfo) Name() string { return m.name }

// MemType returns the memory type.
func (m *MemoryInfo) MemType() MemType { return m.memType }

// AllocatorType returns the allocator type.
func (m *MemoryInfo) AllocatorType() AllocatorType { return m.allocatorType }

// DeviceID returns the device identifier.
func (m *MemoryInfo) DeviceID() int { return m.deviceID }

// IsValid reports whether the native handle is still live.
func (m *MemoryInfo) IsValid() bool { return m.handle != 0 }

// allocatedString copies a runtime-allocated C string into a Go string and
// returns the allocation to the allocator that produced it.
func allocatedString(fns *ortFuncs, allocator uintptr, ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	s := CstringToGo(ptr)
	if fns.allocatorFree != nil {
		_ = fns.allocatorFree(allocator, ptr)
	}
	return s
}
