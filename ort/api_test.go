package ort

import (
	"errors"
	"os"
	"testing"
)

func TestBindOrtFuncsRejectsEmptyTable(t *testing.T) {
	_, err := bindOrtFuncs(&OrtApi{})
	if err == nil {
		t.Fatal("expected an error binding an empty function table")
	}

	var mismatch *SymbolMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *SymbolMismatchError, got %T", err)
	}
	if mismatch.Symbol != "OrtApi::GetErrorCode" {
		t.Fatalf("unexpected missing symbol: %q", mismatch.Symbol)
	}
}

// TestRealRuntimeEnvironmentLifecycle exercises the actual shared library when
// one is available. It verifies that the binding offsets line up with the C
// struct layout by calling functions at both ends of the table.
func TestRealRuntimeEnvironmentLifecycle(t *testing.T) {
	realLib := os.Getenv("ONNXRUNTIME_LIB_PATH")
	if realLib == "" {
		t.Skip("ONNXRUNTIME_LIB_PATH not set, skipping integration test")
	}

	resetRuntimeState()
	t.Cleanup(resetRuntimeState)

	if err := SetSharedLibraryPath(realLib); err != nil {
		t.Fatalf("failed to set library path: %v", err)
	}

	version, err := RuntimeVersion()
	if err != nil {
		t.Fatalf("failed to query runtime version: %v", err)
	}
	if version == "" {
		t.Fatal("expected a non-empty runtime version")
	}
	t.Logf("onnxruntime version: %s", version)

	for i := 0; i < 3; i++ {
		if err := InitializeEnvironment(); err != nil {
			t.Fatalf("failed to initialize environment (iteration %d): %v", i, err)
		}
		if err := DestroyEnvironment(); err != nil {
			t.Fatalf("failed to destroy environment (iteration %d): %v", i, err)
		}
	}
}
