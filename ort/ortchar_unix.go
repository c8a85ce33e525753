//go:build !windows

package ort

// goStringToORTChar converts a Go string to ORTCHAR_T for Unix platforms,
// where ORTCHAR_T is plain char. The returned backing object must be kept
// alive by the caller until the runtime has finished reading the pointer.
func goStringToORTChar(s string) (uintptr, any, error) {
	bytes, ptr := GoToCstring(s)
	return ptr, bytes, nil
}
