//go:build !ortbind_static

package ort

import (
	"github.com/ebitengine/purego"
)

const apiBaseSymbol = "OrtGetApiBase"

// loadAndBindRuntime is the dynamic-loading variant of runtime acquisition:
// resolve a shared library path, dlopen it, and bind the versioned function
// table. The static build mode replaces this whole step with a pre-bound
// table; nothing outside this file branches on the mode.
func loadAndBindRuntime(explicitPath string) (*ortFuncs, string, uintptr, error) {
	path, err := resolveLibraryPath(explicitPath)
	if err != nil {
		return nil, "", 0, err
	}

	handle, err := loadLibrary(path)
	if err != nil || handle == 0 {
		return nil, "", 0, &LibraryNotFoundError{Attempted: []string{path}, Cause: err}
	}

	sym, err := getSymbol(handle, apiBaseSymbol)
	if err != nil || sym == 0 {
		return nil, "", 0, &SymbolMismatchError{Symbol: apiBaseSymbol, Cause: err}
	}

	var getApiBase func() *OrtApiBase
	purego.RegisterFunc(&getApiBase, sym)
	base := getApiBase()
	if base == nil {
		return nil, "", 0, &SymbolMismatchError{Symbol: apiBaseSymbol}
	}

	fns, version, err := bindAPIBase(base)
	if err != nil {
		return nil, "", 0, err
	}
	return fns, version, handle, nil
}
