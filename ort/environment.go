package ort

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Masterminds/semver/v3"
	"k8s.io/klog/v2"
)

// Process-wide runtime state. The function table is published through an
// atomic pointer so error translation can read it without taking mu; every
// write happens under mu.
var (
	mu sync.Mutex

	libPath        string // explicit override, set before first load
	libHandle      uintptr
	runtimeVersion string
	runtimeLoaded  bool

	apiTable atomic.Pointer[ortFuncs]

	ortEnv    uintptr
	envRefs   int
	envPinned bool
	logLevel  = LoggingLevelWarning
	envLogID  = "ortbind"
)

// acquireRuntime performs the one-time library load and symbol binding.
// Swapped out by tests to count load attempts and install a synthetic
// engine.
var acquireRuntime = loadAndBindRuntime

func currentAPI() *ortFuncs {
	return apiTable.Load()
}

// SetSharedLibraryPath overrides library resolution with an explicit path.
// It must be called before the runtime is first loaded.
func SetSharedLibraryPath(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if runtimeLoaded {
		if libPath == path {
			return nil
		}
		return errAlreadyLoaded(libPath)
	}
	libPath = path
	return nil
}

// LibraryPath returns the explicit library path override, if any.
func LibraryPath() string {
	mu.Lock()
	defer mu.Unlock()
	return libPath
}

// SetEnvironmentLogging configures the severity level and log identifier
// used when the native environment is created. Has no effect once the
// environment exists.
func SetEnvironmentLogging(level LoggingLevel, logID string) {
	mu.Lock()
	defer mu.Unlock()
	logLevel = level
	if logID != "" {
		envLogID = logID
	}
}

// RuntimeVersion loads the runtime if needed and returns its reported
// version string.
func RuntimeVersion() (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if _, err := ensureRuntimeLocked(); err != nil {
		return "", err
	}
	return runtimeVersion, nil
}

// ensureRuntimeLocked resolves, loads, and binds the native library exactly
// once per process. First successful load wins; concurrent first use is
// serialized by mu. Callers must hold mu.
func ensureRuntimeLocked() (*ortFuncs, error) {
	if runtimeLoaded {
		return apiTable.Load(), nil
	}

	fns, version, handle, err := acquireRuntime(libPath)
	if err != nil {
		return nil, err
	}

	if err := checkRuntimeVersion(version); err != nil {
		return nil, err
	}

	libHandle = handle
	runtimeVersion = version
	apiTable.Store(fns)
	runtimeLoaded = true
	klog.V(1).Infof("loaded onnx runtime %s", version)
	return fns, nil
}

// checkRuntimeVersion gates loading on the minimum validated runtime
// release. Unparseable versions are tolerated: the hard compatibility gate
// is GetApi returning a non-nil table for ORTAPIVersion.
func checkRuntimeVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		klog.Warningf("onnx runtime reported unparseable version %q, continuing", version)
		return nil
	}

	minimum := semver.MustParse(MinimumRuntimeVersion)
	if v.LessThan(minimum) {
		return &UnsupportedAPIVersionError{
			Requested:      ORTAPIVersion,
			RuntimeVersion: version,
			MinimumRuntime: MinimumRuntimeVersion,
		}
	}
	return nil
}

// acquireEnvironment returns the shared native environment, creating it on
// first use, and takes one reference. Every successful acquire must be
// paired with releaseEnvironment.
func acquireEnvironment() (uintptr, *ortFuncs, error) {
	mu.Lock()
	defer mu.Unlock()
	return acquireEnvironmentLocked()
}

func acquireEnvironmentLocked() (uintptr, *ortFuncs, error) {
	fns, err := ensureRuntimeLocked()
	if err != nil {
		return 0, nil, err
	}

	if ortEnv == 0 {
		logIDBytes, logIDPtr := GoToCstring(envLogID)
		var env uintptr
		status := fns.createEnv(int32(logLevel), logIDPtr, &env)
		runtime.KeepAlive(logIDBytes)
		if err := statusToError("CreateEnv", status); err != nil {
			return 0, nil, err
		}
		ortEnv = env
	}

	envRefs++
	return ortEnv, fns, nil
}

// releaseEnvironment drops one reference taken by acquireEnvironment. The
// native environment is released only after its last dependent is gone, so
// sessions always die before the environment they were built from.
func releaseEnvironment() {
	mu.Lock()
	defer mu.Unlock()
	releaseEnvironmentLocked()
}

func releaseEnvironmentLocked() {
	if envRefs == 0 {
		return
	}
	envRefs--
	if envRefs > 0 || ortEnv == 0 {
		return
	}

	if fns := apiTable.Load(); fns != nil && fns.releaseEnv != nil {
		fns.releaseEnv(ortEnv)
	}
	ortEnv = 0
}

// InitializeEnvironment eagerly loads the runtime and creates the native
// environment, pinning it until DestroyEnvironment. Optional: the first
// session build does the same lazily.
func InitializeEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	if envPinned {
		return nil
	}
	if _, _, err := acquireEnvironmentLocked(); err != nil {
		return err
	}
	envPinned = true
	return nil
}

// DestroyEnvironment drops the pin taken by InitializeEnvironment. The
// native environment stays alive while sessions still reference it.
func DestroyEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	if !envPinned {
		return nil
	}
	envPinned = false
	releaseEnvironmentLocked()
	return nil
}

// IsInitialized reports whether the native environment currently exists.
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return ortEnv != 0
}

// defaultAllocator returns the runtime's shared default allocator.
// The handle is owned by the runtime and must not be released. Callers must
// hold mu or otherwise guarantee the runtime is loaded.
func defaultAllocator(fns *ortFuncs) (uintptr, error) {
	var allocator uintptr
	status := fns.getAllocatorWithDefaultOptions(&allocator)
	if err := statusToError("GetAllocatorWithDefaultOptions", status); err != nil {
		return 0, err
	}
	return allocator, nil
}
