package ort

import "unsafe"

// CstringToGo converts a C null-terminated string pointer to a Go string.
// Returns the empty string if ptr is 0 (null).
func CstringToGo(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}

	// Scan for the terminator through a bounded window rather than an
	// unbounded pointer walk. Runtime strings (version, error messages,
	// provider and tensor names) are well under this limit; anything
	// larger indicates corruption on the native side.
	const maxStringLen = 1 << 20
	// #nosec G103 -- reading a C string returned by the runtime; bounded above.
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), maxStringLen)

	var length int
	for i := 0; i < maxStringLen; i++ {
		if bytes[i] == 0 {
			length = i
			break
		}
	}

	return string(bytes[:length])
}

// GoToCstring converts a Go string to a null-terminated byte slice suitable
// for passing across the FFI boundary. The caller must keep the returned
// slice alive (runtime.KeepAlive) for as long as the native side may read
// the pointer.
func GoToCstring(s string) ([]byte, uintptr) {
	b := append([]byte(s), 0)
	return b, uintptr(unsafe.Pointer(&b[0]))
}

// goStringsToCstrings converts a slice of Go strings into a C array of
// char* pointers. Both returned slices must be kept alive while the native
// side may read them; the uintptr addresses the first element of the
// pointer array (null when the input is empty).
func goStringsToCstrings(values []string) ([][]byte, []uintptr, uintptr) {
	if len(values) == 0 {
		return nil, nil, 0
	}

	backing := make([][]byte, len(values))
	pointers := make([]uintptr, len(values))
	for i, v := range values {
		backing[i], pointers[i] = GoToCstring(v)
	}

	return backing, pointers, uintptr(unsafe.Pointer(&pointers[0]))
}
