//go:build ortbind_static

package ort

import "sync"

// Static/WASM build mode: there is no OS-level dynamic loading step. The
// embedding host links the engine into the process (or instantiates it in a
// WebAssembly module) and hands us its OrtApiBase before first use.

var (
	staticMu      sync.Mutex
	staticAPIBase *OrtApiBase
)

// RegisterPreboundAPIBase supplies the engine's API base in a build mode
// with no dynamic loading. Must be called before the first session build;
// the first registration wins.
func RegisterPreboundAPIBase(base *OrtApiBase) {
	staticMu.Lock()
	defer staticMu.Unlock()
	if staticAPIBase == nil {
		staticAPIBase = base
	}
}

// loadAndBindRuntime is the static-link variant of runtime acquisition: the
// locating and loading steps are no-ops and resolution returns the
// pre-bound table.
func loadAndBindRuntime(string) (*ortFuncs, string, uintptr, error) {
	staticMu.Lock()
	base := staticAPIBase
	staticMu.Unlock()

	if base == nil {
		return nil, "", 0, &LibraryNotFoundError{
			Attempted: []string{"prebound API base (RegisterPreboundAPIBase was never called)"},
		}
	}

	fns, version, err := bindAPIBase(base)
	if err != nil {
		return nil, "", 0, err
	}
	return fns, version, 0, nil
}
