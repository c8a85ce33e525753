package ort

import (
	"os"
	"path/filepath"
	"runtime"
)

// platformLibraryName returns the runtime shared library filename for the
// current platform.
func platformLibraryName() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

// resolveLibraryPath decides which shared library file to load.
//
// Resolution order:
//  1. the explicit path (SetSharedLibraryPath or bootstrap),
//  2. the ONNXRUNTIME_LIB_PATH environment variable,
//  3. a library previously installed into the bootstrap cache,
//  4. the bare platform library name, deferring to the OS loader's
//     default search path.
//
// Only candidates that name an existing file are checked here; the final
// fallback is returned unchecked because the loader searches paths this
// process cannot enumerate.
func resolveLibraryPath(explicit string) (string, error) {
	if explicit != "" {
		path, err := validateLibraryFile(explicit)
		if err != nil {
			return "", &LibraryNotFoundError{Attempted: []string{explicit}, Cause: err}
		}
		return path, nil
	}

	if envPath := os.Getenv("ONNXRUNTIME_LIB_PATH"); envPath != "" {
		path, err := validateLibraryFile(envPath)
		if err != nil {
			return "", &LibraryNotFoundError{Attempted: []string{envPath}, Cause: err}
		}
		return path, nil
	}

	if cached, err := cachedRuntimeLibrary(); err == nil {
		return cached, nil
	}

	// Defer to the platform loader search path.
	return platformLibraryName(), nil
}

// cachedRuntimeLibrary looks for a runtime previously installed by the
// bootstrap into the user cache directory. Returns the resolved path, or
// the directory that was searched with a non-nil error.
func cachedRuntimeLibrary() (string, error) {
	cacheDir := os.Getenv("ONNXRUNTIME_CACHE_DIR")
	if cacheDir == "" {
		cacheDir = defaultBootstrapCacheDir()
	}

	artifact, err := resolveRuntimeArtifact(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return cacheDir, err
	}

	installDir := filepath.Join(cacheDir, artifact.archiveName(DefaultRuntimeVersion))
	path, err := resolveExtractedLibraryPath(installDir, artifact)
	if err != nil {
		return installDir, err
	}
	return path, nil
}
