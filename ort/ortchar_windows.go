//go:build windows

package ort

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// goStringToORTChar converts a Go string to ORTCHAR_T for Windows, where
// ORTCHAR_T is wchar_t. The returned backing object must be kept alive by
// the caller until the runtime has finished reading the pointer.
func goStringToORTChar(s string) (uintptr, any, error) {
	utf16, err := windows.UTF16FromString(s)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to convert path to UTF-16: %w", err)
	}
	// #nosec G103 -- Required for CGO-free FFI to pass wchar_t* path on Windows.
	return uintptr(unsafe.Pointer(unsafe.SliceData(utf16))), utf16, nil
}
