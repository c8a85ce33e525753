package ort

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultRuntimeVersion is the runtime release the bootstrap downloads
	// when no version is requested. Tracks the release validated by CI.
	DefaultRuntimeVersion = "1.17.3"

	defaultBootstrapBaseURL = "https://github.com/microsoft/onnxruntime/releases/download"
)

var errSharedLibraryNotFound = errors.New("onnx runtime shared library not found")

// BootstrapOption configures EnsureRuntimeSharedLibrary.
type BootstrapOption func(*bootstrapConfig) error

type bootstrapConfig struct {
	libraryPath     string
	cacheDir        string
	version         string
	disableDownload bool
	expectedSHA256  string
	baseURL         string
	httpClient      *http.Client
	goos            string
	goarch          string
}

// runtimeArtifact names the official release archive for one platform.
type runtimeArtifact struct {
	platform         string
	archiveExtension string
	primaryLibrary   string
	libraryGlob      string
}

// WithBootstrapLibraryPath short-circuits bootstrap with an existing shared
// library path.
func WithBootstrapLibraryPath(path string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("bootstrap library path cannot be empty")
		}
		cfg.libraryPath = strings.TrimSpace(path)
		return nil
	}
}

// WithBootstrapCacheDir sets the download and extraction cache directory.
func WithBootstrapCacheDir(dir string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		if strings.TrimSpace(dir) == "" {
			return errors.New("bootstrap cache directory cannot be empty")
		}
		cfg.cacheDir = strings.TrimSpace(dir)
		return nil
	}
}

// WithBootstrapVersion selects the runtime release to download.
func WithBootstrapVersion(version string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		if strings.TrimSpace(version) == "" {
			return errors.New("bootstrap version cannot be empty")
		}
		cfg.version = strings.TrimSpace(version)
		return nil
	}
}

// WithBootstrapDisableDownload forbids network access; bootstrap then only
// resolves libraries already present in the cache.
func WithBootstrapDisableDownload(disable bool) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		cfg.disableDownload = disable
		return nil
	}
}

// WithBootstrapExpectedSHA256 pins the archive checksum.
func WithBootstrapExpectedSHA256(checksum string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		checksum = strings.ToLower(strings.TrimSpace(checksum))
		if len(checksum) != 64 {
			return errors.New("expected SHA256 checksum must be 64 hex characters")
		}
		if _, err := hex.DecodeString(checksum); err != nil {
			return errors.Wrap(err, "expected SHA256 checksum must be hex")
		}
		cfg.expectedSHA256 = checksum
		return nil
	}
}

func withBootstrapBaseURL(baseURL string) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		if strings.TrimSpace(baseURL) == "" {
			return errors.New("bootstrap base URL cannot be empty")
		}
		cfg.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
		return nil
	}
}

func withBootstrapHTTPClient(client *http.Client) BootstrapOption {
	return func(cfg *bootstrapConfig) error {
		if client == nil {
			return errors.New("bootstrap HTTP client cannot be nil")
		}
		cfg.httpClient = client
		return nil
	}
}

// EnsureRuntimeSharedLibrary makes sure a runtime shared library is present
// on disk and returns its absolute path, downloading and extracting the
// official release archive into the cache if needed. Opt-in; explicit-path
// configuration bypasses it entirely.
func EnsureRuntimeSharedLibrary(opts ...BootstrapOption) (string, error) {
	cfg, err := resolveBootstrapConfig(opts...)
	if err != nil {
		return "", err
	}

	if cfg.libraryPath != "" {
		return validateLibraryFile(cfg.libraryPath)
	}

	artifact, err := resolveRuntimeArtifact(cfg.goos, cfg.goarch)
	if err != nil {
		return "", err
	}

	installDir := filepath.Join(cfg.cacheDir, artifact.archiveName(cfg.version))
	if path, resolveErr := resolveExtractedLibraryPath(installDir, artifact); resolveErr == nil {
		return path, nil
	} else if !errors.Is(resolveErr, errSharedLibraryNotFound) {
		return "", resolveErr
	}

	if cfg.disableDownload {
		return "", errors.Errorf("runtime library not found in cache and download is disabled: %s", installDir)
	}

	if err := os.MkdirAll(cfg.cacheDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create bootstrap cache directory %q", cfg.cacheDir)
	}

	// Concurrent processes bootstrapping the same version race on the
	// install directory; a file lock serializes them.
	lockPath := filepath.Join(cfg.cacheDir, ".locks", fmt.Sprintf("%s-%s.lock", artifact.platform, cfg.version))
	var resolvedPath string
	lockErr := withProcessFileLock(lockPath, func() error {
		if path, resolveErr := resolveExtractedLibraryPath(installDir, artifact); resolveErr == nil {
			resolvedPath = path
			return nil
		} else if !errors.Is(resolveErr, errSharedLibraryNotFound) {
			return resolveErr
		}

		if err := downloadAndInstallRuntime(cfg, artifact, installDir); err != nil {
			return err
		}

		path, resolveErr := resolveExtractedLibraryPath(installDir, artifact)
		if resolveErr != nil {
			return errors.Wrap(resolveErr, "bootstrap completed but shared library could not be resolved")
		}
		resolvedPath = path
		return nil
	})
	if lockErr != nil {
		return "", lockErr
	}

	return resolvedPath, nil
}

// InitializeEnvironmentWithBootstrap resolves a shared library through the
// bootstrap, pins it as the library path, and initializes the environment.
func InitializeEnvironmentWithBootstrap(opts ...BootstrapOption) error {
	path, err := EnsureRuntimeSharedLibrary(opts...)
	if err != nil {
		return err
	}
	if err := SetSharedLibraryPath(path); err != nil {
		return err
	}
	return InitializeEnvironment()
}

func resolveBootstrapConfig(opts ...BootstrapOption) (bootstrapConfig, error) {
	cfg := bootstrapConfig{
		libraryPath: strings.TrimSpace(os.Getenv("ONNXRUNTIME_LIB_PATH")),
		cacheDir:    strings.TrimSpace(os.Getenv("ONNXRUNTIME_CACHE_DIR")),
		version:     strings.TrimSpace(os.Getenv("ONNXRUNTIME_VERSION")),
		baseURL:     defaultBootstrapBaseURL,
		httpClient:  &http.Client{Timeout: 2 * time.Minute},
		goos:        runtime.GOOS,
		goarch:      runtime.GOARCH,
	}
	if disable := os.Getenv("ONNXRUNTIME_DISABLE_DOWNLOAD"); disable != "" {
		switch strings.ToLower(strings.TrimSpace(disable)) {
		case "1", "true", "yes", "on":
			cfg.disableDownload = true
		case "0", "false", "no", "off":
			cfg.disableDownload = false
		default:
			return bootstrapConfig{}, errors.Errorf("invalid boolean value for ONNXRUNTIME_DISABLE_DOWNLOAD: %q", disable)
		}
	}

	if cfg.version == "" {
		cfg.version = DefaultRuntimeVersion
	}
	if cfg.cacheDir == "" {
		cfg.cacheDir = defaultBootstrapCacheDir()
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return bootstrapConfig{}, err
		}
	}

	version, err := semver.NewVersion(strings.TrimPrefix(cfg.version, "v"))
	if err != nil {
		return bootstrapConfig{}, errors.Wrapf(err, "invalid runtime version %q", cfg.version)
	}
	cfg.version = version.String()
	cfg.cacheDir = filepath.Clean(cfg.cacheDir)

	return cfg, nil
}

func resolveRuntimeArtifact(goos, goarch string) (runtimeArtifact, error) {
	switch goos {
	case "darwin":
		switch goarch {
		case "arm64":
			return runtimeArtifact{"osx-arm64", "tgz", "libonnxruntime.dylib", "libonnxruntime*.dylib"}, nil
		case "amd64":
			return runtimeArtifact{"osx-x86_64", "tgz", "libonnxruntime.dylib", "libonnxruntime*.dylib"}, nil
		}
	case "linux":
		switch goarch {
		case "arm64":
			return runtimeArtifact{"linux-aarch64", "tgz", "libonnxruntime.so", "libonnxruntime.so*"}, nil
		case "amd64":
			return runtimeArtifact{"linux-x64", "tgz", "libonnxruntime.so", "libonnxruntime.so*"}, nil
		}
	case "windows":
		switch goarch {
		case "amd64":
			return runtimeArtifact{"win-x64", "zip", "onnxruntime.dll", "onnxruntime*.dll"}, nil
		case "arm64":
			return runtimeArtifact{"win-arm64", "zip", "onnxruntime.dll", "onnxruntime*.dll"}, nil
		}
	}
	return runtimeArtifact{}, errors.Errorf("unsupported platform for runtime bootstrap: GOOS=%s GOARCH=%s", goos, goarch)
}

func (a runtimeArtifact) archiveName(version string) string {
	return fmt.Sprintf("onnxruntime-%s-%s", a.platform, version)
}

func (a runtimeArtifact) archiveFilename(version string) string {
	return fmt.Sprintf("%s.%s", a.archiveName(version), a.archiveExtension)
}

func (a runtimeArtifact) downloadURL(baseURL, version string) string {
	return fmt.Sprintf("%s/v%s/%s", strings.TrimRight(baseURL, "/"), version, a.archiveFilename(version))
}

func downloadAndInstallRuntime(cfg bootstrapConfig, artifact runtimeArtifact, installDir string) error {
	url := artifact.downloadURL(cfg.baseURL, cfg.version)
	klog.V(1).Infof("downloading onnx runtime archive from %s", url)

	archivePath, checksum, err := downloadRuntimeArchive(cfg, url)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(archivePath) }()

	if cfg.expectedSHA256 != "" && checksum != cfg.expectedSHA256 {
		return errors.Errorf("download checksum mismatch: expected %s, got %s", cfg.expectedSHA256, checksum)
	}

	stagingRoot := installDir + fmt.Sprintf(".staging-%d", time.Now().UnixNano())
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create bootstrap staging directory %q", stagingRoot)
	}
	defer func() { _ = os.RemoveAll(stagingRoot) }()

	if err := extractArchiveFile(archivePath, stagingRoot, artifact.archiveExtension); err != nil {
		return err
	}

	// Official archives nest everything under one top-level directory.
	extractedInstallDir := filepath.Join(stagingRoot, artifact.archiveName(cfg.version))
	if info, statErr := os.Stat(extractedInstallDir); statErr != nil {
		if !errors.Is(statErr, os.ErrNotExist) {
			return errors.Wrapf(statErr, "failed to inspect extracted install directory %q", extractedInstallDir)
		}
		extractedInstallDir = stagingRoot
	} else if !info.IsDir() {
		return errors.Errorf("extracted install path is not a directory: %q", extractedInstallDir)
	}

	if _, err := resolveExtractedLibraryPath(extractedInstallDir, artifact); err != nil {
		if errors.Is(err, errSharedLibraryNotFound) {
			return errors.Errorf("downloaded archive did not contain expected shared library in %q", filepath.Join(extractedInstallDir, "lib"))
		}
		return err
	}

	if err := os.RemoveAll(installDir); err != nil {
		return errors.Wrapf(err, "failed to remove previous runtime install at %q", installDir)
	}
	if err := os.Rename(extractedInstallDir, installDir); err != nil {
		return errors.Wrapf(err, "failed to install runtime to %q", installDir)
	}
	return nil
}

func downloadRuntimeArchive(cfg bootstrapConfig, url string) (archivePath string, checksum string, err error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to create download request for %q", url)
	}

	resp, err := cfg.httpClient.Do(req)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to download runtime archive from %q", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if trimmed := strings.TrimSpace(string(snippet)); trimmed != "" {
			return "", "", errors.Errorf("failed to download runtime archive from %q: HTTP %d: %s", url, resp.StatusCode, trimmed)
		}
		return "", "", errors.Errorf("failed to download runtime archive from %q: HTTP %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(cfg.cacheDir, 0o755); err != nil {
		return "", "", errors.Wrapf(err, "failed to create cache directory %q", cfg.cacheDir)
	}

	tmpFile, err := os.CreateTemp(cfg.cacheDir, "onnxruntime-*.archive")
	if err != nil {
		return "", "", errors.Wrap(err, "failed to create temporary archive file")
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		closeErr := tmpFile.Close()
		if err == nil && closeErr != nil {
			err = closeErr
		}
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(tmpFile, hasher), resp.Body)
	if copyErr != nil {
		return "", "", errors.Wrapf(copyErr, "failed to write runtime archive to %q", tmpPath)
	}
	if written == 0 {
		return "", "", errors.New("downloaded runtime archive is empty")
	}

	success = true
	return tmpPath, hex.EncodeToString(hasher.Sum(nil)), nil
}

func extractArchiveFile(archivePath, destinationDir, extension string) error {
	switch extension {
	case "tgz":
		return extractTGZArchive(archivePath, destinationDir)
	case "zip":
		return extractZIPArchive(archivePath, destinationDir)
	default:
		return errors.Errorf("unsupported archive extension %q", extension)
	}
}

func extractTGZArchive(archivePath, destinationDir string) error {
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive %q", archivePath)
	}
	defer func() { _ = archiveFile.Close() }()

	gzipReader, err := gzip.NewReader(archiveFile)
	if err != nil {
		return errors.Wrapf(err, "failed to read gzip archive %q", archivePath)
	}
	defer func() { _ = gzipReader.Close() }()

	tarReader := tar.NewReader(gzipReader)
	regularFiles := 0

	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "failed to read tar entry from %q", archivePath)
		}

		targetPath, err := secureArchiveJoin(destinationDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", targetPath)
			}
		case tar.TypeReg:
			if err := writeExtractedFile(targetPath, tarReader, header.FileInfo().Mode().Perm()); err != nil {
				return err
			}
			regularFiles++
		default:
			// Skip links and device files. Runtime libraries are regular files.
			continue
		}
	}

	if regularFiles == 0 {
		return errors.Errorf("archive %q did not contain regular files", archivePath)
	}
	return nil
}

func extractZIPArchive(archivePath, destinationDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open ZIP archive %q", archivePath)
	}
	defer func() { _ = reader.Close() }()

	regularFiles := 0
	for _, entry := range reader.File {
		targetPath, err := secureArchiveJoin(destinationDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0o755); err != nil {
				return errors.Wrapf(err, "failed to create directory %q", targetPath)
			}
			continue
		}

		rc, err := entry.Open()
		if err != nil {
			return errors.Wrapf(err, "failed to open ZIP entry %q", entry.Name)
		}
		err = writeExtractedFile(targetPath, rc, entry.Mode().Perm())
		closeErr := rc.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return errors.Wrapf(closeErr, "failed to close ZIP entry %q", entry.Name)
		}
		regularFiles++
	}

	if regularFiles == 0 {
		return errors.Errorf("archive %q did not contain regular files", archivePath)
	}
	return nil
}

func writeExtractedFile(targetPath string, src io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create parent directory for %q", targetPath)
	}
	if mode == 0 {
		mode = 0o644
	}
	outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return errors.Wrapf(err, "failed to create extracted file %q", targetPath)
	}
	if _, err := io.Copy(outFile, src); err != nil {
		_ = outFile.Close()
		return errors.Wrapf(err, "failed to extract file %q", targetPath)
	}
	if err := outFile.Close(); err != nil {
		return errors.Wrapf(err, "failed to close extracted file %q", targetPath)
	}
	return nil
}

func resolveExtractedLibraryPath(installDir string, artifact runtimeArtifact) (string, error) {
	libDir := filepath.Join(installDir, "lib")

	primaryPath := filepath.Join(libDir, artifact.primaryLibrary)
	if path, err := validateLibraryFile(primaryPath); err == nil {
		return path, nil
	}

	matches, err := filepath.Glob(filepath.Join(libDir, artifact.libraryGlob))
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve runtime library path")
	}
	sort.Strings(matches)
	for _, match := range matches {
		if path, err := validateLibraryFile(match); err == nil {
			return path, nil
		}
	}

	return "", errSharedLibraryNotFound
}

func validateLibraryFile(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("library path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve absolute path for %q", path)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat library file %q", absPath)
	}
	if info.IsDir() {
		return "", errors.Errorf("library path points to a directory: %q", absPath)
	}
	if info.Size() == 0 {
		return "", errors.Errorf("library file is empty: %q", absPath)
	}

	return absPath, nil
}

func withProcessFileLock(lockPath string, fn func() error) (err error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create lock directory for %q", lockPath)
	}

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open lock file %q", lockPath)
	}

	if err := lockFileBlocking(file); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "failed to acquire lock %q", lockPath)
	}

	defer func() {
		unlockErr := unlockFile(file)
		closeErr := file.Close()
		if err == nil {
			if unlockErr != nil {
				err = unlockErr
			} else if closeErr != nil {
				err = closeErr
			}
		}
	}()

	return fn()
}

// lockFileBlocking retries a non-blocking lock until it is granted, so two
// processes bootstrapping the same version take turns instead of failing.
func lockFileBlocking(file *os.File) error {
	for {
		err := lockFile(file)
		if err == nil {
			return nil
		}
		if !isLockWouldBlock(err) {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func secureArchiveJoin(baseDir, archivePath string) (string, error) {
	archivePath = strings.TrimSpace(archivePath)
	if archivePath == "" {
		return "", errors.New("invalid empty archive entry path")
	}

	normalized := strings.ReplaceAll(archivePath, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return "", errors.Errorf("invalid absolute archive entry path %q", archivePath)
	}
	if len(normalized) >= 2 && isASCIILetter(normalized[0]) && normalized[1] == ':' {
		return "", errors.Errorf("invalid archive entry path with drive letter %q", archivePath)
	}

	cleaned := filepath.Clean(normalized)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) {
		return "", errors.Errorf("unsafe archive entry path %q", archivePath)
	}

	targetPath := filepath.Join(baseDir, cleaned)
	relPath, err := filepath.Rel(baseDir, targetPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve archive path %q", archivePath)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(os.PathSeparator)) {
		return "", errors.Errorf("unsafe archive entry path %q", archivePath)
	}

	return targetPath, nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func defaultBootstrapCacheDir() string {
	cacheDir, err := os.UserCacheDir()
	if err == nil && cacheDir != "" {
		return filepath.Join(cacheDir, "ortbind", "onnxruntime")
	}

	fallback := filepath.Join(os.TempDir(), "ortbind", "onnxruntime")
	klog.Warningf("failed to resolve user cache directory, using temporary runtime cache at %q; set ONNXRUNTIME_CACHE_DIR for a persistent cache", fallback)
	return fallback
}
