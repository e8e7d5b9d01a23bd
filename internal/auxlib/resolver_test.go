package auxlib

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blenderpy/bpybuild/internal/config"
	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/retry"
	"github.com/blenderpy/bpybuild/internal/toolchain"
)

func win64Info() *toolchain.Info {
	return &toolchain.Info{
		OS:        toolchain.Windows,
		WordWidth: 64,
		Aux:       &toolchain.AuxRequirement{Key: "win64_vc14", WordWidth: 64},
	}
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func fastRetry() retry.Policy {
	return retry.Policy{Mode: config.RetryBackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 1}
}

func TestResolveNilRequirement(t *testing.T) {
	resolver := NewResolver(t.TempDir(), nil)

	handle, err := resolver.Resolve(context.Background(), &toolchain.Info{OS: toolchain.Linux, WordWidth: 64})
	require.NoError(t, err)
	assert.Nil(t, handle)
}

func TestResolveDownloadsAndExtracts(t *testing.T) {
	payload := zipArchive(t, map[string]string{
		"lib/opencollada.lib": "binary",
		"lib/README.txt":      "precompiled libraries",
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/lib/win64_vc14.zip" {
			w.Write(payload)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	resolver := NewResolver(cacheDir, []string{server.URL + "/lib"}, WithRetryPolicy(fastRetry()))

	handle, err := resolver.Resolve(context.Background(), win64Info())
	require.NoError(t, err)
	require.NotNil(t, handle)

	assert.False(t, handle.Cached)
	assert.Equal(t, filepath.Join(cacheDir, "win64_vc14"), handle.Path)
	assert.FileExists(t, filepath.Join(handle.Path, "lib", "opencollada.lib"))
}

func TestResolveCacheHitNeedsNoNetwork(t *testing.T) {
	payload := zipArchive(t, map[string]string{"lib/x.lib": "binary"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))

	cacheDir := t.TempDir()
	resolver := NewResolver(cacheDir, []string{server.URL}, WithRetryPolicy(fastRetry()))

	first, err := resolver.Resolve(context.Background(), win64Info())
	require.NoError(t, err)
	require.False(t, first.Cached)

	// The mirror is gone; the cache must satisfy the second resolve.
	server.Close()

	second, err := resolver.Resolve(context.Background(), win64Info())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Path, second.Path)
}

func TestResolveFallsBackToSecondMirror(t *testing.T) {
	payload := zipArchive(t, map[string]string{"lib/x.lib": "binary"})
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer dead.Close()
	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer alive.Close()

	resolver := NewResolver(t.TempDir(), []string{dead.URL, alive.URL}, WithRetryPolicy(fastRetry()))

	handle, err := resolver.Resolve(context.Background(), win64Info())
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.FileExists(t, filepath.Join(handle.Path, "lib", "x.lib"))
}

func TestResolveEmptyArchiveIsDownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with no body: the mirror is broken, not absent.
	}))
	defer server.Close()

	resolver := NewResolver(t.TempDir(), []string{server.URL}, WithRetryPolicy(fastRetry()))

	_, err := resolver.Resolve(context.Background(), win64Info())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDownloadFailed), "got %v", err)
}

func TestResolveCorruptArchiveIsExtractFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a zip archive"))
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	resolver := NewResolver(cacheDir, []string{server.URL}, WithRetryPolicy(fastRetry()))

	_, err := resolver.Resolve(context.Background(), win64Info())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeExtractFailed), "got %v", err)

	// A failed extraction must not leave a poisoned cache entry behind.
	assert.NoFileExists(t, filepath.Join(cacheDir, "win64_vc14"))
	assert.NoDirExists(t, filepath.Join(cacheDir, "win64_vc14"))
}

func TestResolveUnsupportedPlatform(t *testing.T) {
	resolver := NewResolver(t.TempDir(), nil)

	info := &toolchain.Info{
		OS:        toolchain.Linux,
		WordWidth: 64,
		Aux:       &toolchain.AuxRequirement{Key: "win64_vc14", WordWidth: 64},
	}
	_, err := resolver.Resolve(context.Background(), info)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnsupportedPlatform), "got %v", err)
}

func TestResolveAllMirrorsDown(t *testing.T) {
	resolver := NewResolver(t.TempDir(), []string{"http://127.0.0.1:1/lib"}, WithRetryPolicy(fastRetry()))

	_, err := resolver.Resolve(context.Background(), win64Info())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeDownloadFailed), "got %v", err)

	if classified, ok := errors.AsClassified(err); ok {
		assert.True(t, classified.CanRetry(), "mirror outages are transient")
	}
}

func TestCacheSurvivesProcessRestart(t *testing.T) {
	payload := zipArchive(t, map[string]string{"x": "y"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	cacheDir := t.TempDir()
	first := NewResolver(cacheDir, []string{server.URL}, WithRetryPolicy(fastRetry()))
	_, err := first.Resolve(context.Background(), win64Info())
	require.NoError(t, err)

	// A fresh resolver (new process) over the same cache directory.
	second := NewResolver(cacheDir, []string{"http://127.0.0.1:1"}, WithRetryPolicy(fastRetry()))
	handle, err := second.Resolve(context.Background(), win64Info())
	require.NoError(t, err)
	assert.True(t, handle.Cached)

	// Stray temp downloads must not be mistaken for cache entries.
	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "download-", "temporary archives should be removed")
	}
}
