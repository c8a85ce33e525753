package ort

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestPlatformLibraryName(t *testing.T) {
	got := platformLibraryName()
	switch runtime.GOOS {
	case "windows":
		if got != "onnxruntime.dll" {
			t.Fatalf("unexpected library name: %q", got)
		}
	case "darwin":
		if got != "libonnxruntime.dylib" {
			t.Fatalf("unexpected library name: %q", got)
		}
	default:
		if got != "libonnxruntime.so" {
			t.Fatalf("unexpected library name: %q", got)
		}
	}
}

func TestResolveLibraryPathExplicit(t *testing.T) {
	clearBootstrapEnv(t)

	libFile := filepath.Join(t.TempDir(), platformLibraryName())
	if err := os.WriteFile(libFile, []byte("fake library"), 0o644); err != nil {
		t.Fatalf("failed to write library file: %v", err)
	}

	got, err := resolveLibraryPath(libFile)
	if err != nil {
		t.Fatalf("resolveLibraryPath failed: %v", err)
	}
	if got != libFile {
		t.Fatalf("unexpected path: got %q, want %q", got, libFile)
	}
}

func TestResolveLibraryPathExplicitMissing(t *testing.T) {
	clearBootstrapEnv(t)

	missing := filepath.Join(t.TempDir(), "libonnxruntime.so")
	_, err := resolveLibraryPath(missing)
	if err == nil {
		t.Fatal("expected an error for a missing explicit path")
	}

	var notFound *LibraryNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *LibraryNotFoundError, got %T", err)
	}
	if len(notFound.Attempted) != 1 || notFound.Attempted[0] != missing {
		t.Fatalf("unexpected attempted list: %v", notFound.Attempted)
	}
}

func TestResolveLibraryPathEnvOverride(t *testing.T) {
	clearBootstrapEnv(t)

	libFile := filepath.Join(t.TempDir(), platformLibraryName())
	if err := os.WriteFile(libFile, []byte("fake library"), 0o644); err != nil {
		t.Fatalf("failed to write library file: %v", err)
	}
	t.Setenv("ONNXRUNTIME_LIB_PATH", libFile)

	got, err := resolveLibraryPath("")
	if err != nil {
		t.Fatalf("resolveLibraryPath failed: %v", err)
	}
	if got != libFile {
		t.Fatalf("unexpected path: got %q, want %q", got, libFile)
	}
}

func TestResolveLibraryPathEnvOverrideMissing(t *testing.T) {
	clearBootstrapEnv(t)

	missing := filepath.Join(t.TempDir(), "nope.so")
	t.Setenv("ONNXRUNTIME_LIB_PATH", missing)

	_, err := resolveLibraryPath("")
	var notFound *LibraryNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *LibraryNotFoundError, got %v", err)
	}
	if len(notFound.Attempted) != 1 || notFound.Attempted[0] != missing {
		t.Fatalf("unexpected attempted list: %v", notFound.Attempted)
	}
}

func TestResolveLibraryPathUsesBootstrapCache(t *testing.T) {
	clearBootstrapEnv(t)

	artifact, err := resolveRuntimeArtifact(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		t.Skipf("no runtime artifact for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	cacheDir := t.TempDir()
	t.Setenv("ONNXRUNTIME_CACHE_DIR", cacheDir)

	libDir := filepath.Join(cacheDir, artifact.archiveName(DefaultRuntimeVersion), "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatalf("failed to create cache layout: %v", err)
	}
	libFile := filepath.Join(libDir, artifact.primaryLibrary)
	if err := os.WriteFile(libFile, []byte("fake library"), 0o644); err != nil {
		t.Fatalf("failed to write library file: %v", err)
	}

	got, err := resolveLibraryPath("")
	if err != nil {
		t.Fatalf("resolveLibraryPath failed: %v", err)
	}
	if got != libFile {
		t.Fatalf("unexpected path: got %q, want %q", got, libFile)
	}
}

func TestResolveLibraryPathFallsBackToLoaderSearch(t *testing.T) {
	clearBootstrapEnv(t)
	t.Setenv("ONNXRUNTIME_CACHE_DIR", t.TempDir())

	got, err := resolveLibraryPath("")
	if err != nil {
		t.Fatalf("resolveLibraryPath failed: %v", err)
	}
	if got != platformLibraryName() {
		t.Fatalf("expected bare platform library name, got %q", got)
	}
}
