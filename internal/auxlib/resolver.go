// Package auxlib implements the auxiliary-library stage: on platforms that
// need precompiled support libraries it maintains a local cache keyed by
// platform and word width, downloading and extracting the matching archive
// from a fixed set of mirrors on a cache miss. After the first successful
// run, builds on the same machine are network-independent.
package auxlib

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/blenderpy/bpybuild/internal/foundation/errors"
	"github.com/blenderpy/bpybuild/internal/logfields"
	"github.com/blenderpy/bpybuild/internal/retry"
	"github.com/blenderpy/bpybuild/internal/toolchain"
)

// Handle is the resolved auxiliary-library location handed to the
// configure stage. A nil handle means the platform needs no auxiliary
// library.
type Handle struct {
	Path   string // extracted library root
	Key    string // archive key the cache entry is filed under
	Cached bool   // satisfied from cache without network access
}

// Resolver locates or fetches the platform auxiliary library.
type Resolver struct {
	cacheDir string
	mirrors  []string
	client   *http.Client
	policy   retry.Policy
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithRetryPolicy overrides the download retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(r *Resolver) { r.policy = p }
}

// NewResolver creates a resolver caching under cacheDir and downloading
// from the given mirror base URLs in order.
func NewResolver(cacheDir string, mirrors []string, opts ...Option) *Resolver {
	r := &Resolver{
		cacheDir: cacheDir,
		mirrors:  mirrors,
		client:   &http.Client{Timeout: 10 * time.Minute},
		policy:   retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the library location for the probed platform, downloading
// into the cache on a miss. Platforms without an auxiliary requirement
// resolve to a nil handle.
func (r *Resolver) Resolve(ctx context.Context, info *toolchain.Info) (*Handle, error) {
	if info.Aux == nil {
		return nil, nil
	}
	if info.OS != toolchain.Windows || info.Aux.Key == "" {
		return nil, errors.AuxiliaryError(errors.CodeUnsupportedPlatform, "no auxiliary library archive exists for this platform").
			WithContext("os", string(info.OS)).
			WithContext("word_width", info.WordWidth).
			Build()
	}

	target := filepath.Join(r.cacheDir, info.Aux.Key)
	if populated(target) {
		slog.Info("Auxiliary library cache hit", logfields.CacheKey(info.Aux.Key), logfields.Path(target))
		return &Handle{Path: target, Key: info.Aux.Key, Cached: true}, nil
	}

	archive, err := r.download(ctx, info.Aux.Key)
	if err != nil {
		return nil, err
	}
	defer os.Remove(archive)

	if err := r.extract(archive, target); err != nil {
		return nil, err
	}

	slog.Info("Auxiliary library installed into cache", logfields.CacheKey(info.Aux.Key), logfields.Path(target))
	return &Handle{Path: target, Key: info.Aux.Key}, nil
}

// populated reports whether a cache entry exists and is non-empty.
func populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// download fetches "<mirror>/<key>.zip" from each mirror in order, applying
// the retry policy per mirror, and returns the path of a temporary archive.
func (r *Resolver) download(ctx context.Context, key string) (string, error) {
	if err := os.MkdirAll(r.cacheDir, 0o750); err != nil {
		return "", errors.WrapError(err, errors.CategoryAuxiliary, "failed to create cache directory").Build()
	}

	var lastErr error
	for _, mirror := range r.mirrors {
		url := fmt.Sprintf("%s/%s.zip", mirror, key)
		var path string
		err := r.policy.Do(ctx, func() error {
			var attemptErr error
			path, attemptErr = r.fetchOne(ctx, url)
			return attemptErr
		})
		if err == nil {
			return path, nil
		}
		slog.Warn("Auxiliary mirror failed", logfields.URL(url), logfields.Error(err))
		lastErr = err
	}

	return "", errors.AuxiliaryError(errors.CodeDownloadFailed, "all auxiliary library mirrors failed").
		WithCause(lastErr).
		WithContext("key", key).
		Retryable().
		Build()
}

func (r *Resolver) fetchOne(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(r.cacheDir, "download-*.zip")
	if err != nil {
		return "", err
	}
	written, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if written == 0 {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("mirror served an empty archive")
	}
	return tmp.Name(), nil
}

// extract unpacks the archive into a staging directory and renames it into
// place, so the cache never holds a half-extracted entry.
func (r *Resolver) extract(archive, target string) error {
	staging := target + ".staging"
	if err := os.RemoveAll(staging); err != nil {
		return errors.WrapError(err, errors.CategoryAuxiliary, "failed to clear staging directory").Build()
	}

	if err := unzip(archive, staging); err != nil {
		os.RemoveAll(staging)
		return errors.AuxiliaryError(errors.CodeExtractFailed, "auxiliary archive extraction failed").
			WithCause(err).
			WithContext("archive", archive).
			Build()
	}

	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(staging)
		return errors.WrapError(err, errors.CategoryAuxiliary, "failed to clear cache entry").Build()
	}
	if err := os.Rename(staging, target); err != nil {
		os.RemoveAll(staging)
		return errors.AuxiliaryError(errors.CodeExtractFailed, "failed to move extracted library into cache").
			WithCause(err).
			Build()
	}
	return nil
}
