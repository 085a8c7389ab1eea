// Package fetch downloads catalog datasets into a shared on-disk cache,
// verifies their content hash and extracts archive members.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"go.ngs.io/antgrid/internal/adapter/store/registry"
	"go.ngs.io/antgrid/internal/domain"
)

// CachedFile is a dataset file resolved in the local cache.
type CachedFile struct {
	// Path is the file to read: the selected member for archives, the
	// download itself otherwise.
	Path string `json:"path"`
	// Download is the fetched file as stored in the cache.
	Download  string    `json:"download"`
	URL       string    `json:"url"`
	SHA256    string    `json:"sha256"`
	Size      int64     `json:"size"`
	FetchedAt time.Time `json:"fetched_at"`
	Members   []string  `json:"members,omitempty"`
	// Cached reports that no transfer was needed.
	Cached bool `json:"cached"`
}

// Registry stores download records and trust-on-first-use hashes.
type Registry interface {
	Lookup(ctx context.Context, url string) (registry.Entry, bool, error)
	Record(ctx context.Context, e registry.Entry) error
}

// Mirror is an object store consulted before the upstream host.
type Mirror interface {
	Get(ctx context.Context, key string, w io.Writer) (bool, error)
	Put(ctx context.Context, key string, r io.Reader, size int64) error
}

// Options configures a Fetcher.
type Options struct {
	CacheDir string
	// Client defaults to an http.Client with a 30 minute timeout.
	Client *http.Client
	// MaxRetries bounds retries of transient failures.
	MaxRetries uint64
	// RetryInterval is the first backoff delay.
	RetryInterval time.Duration
	// RequireHash rejects datasets without a pinned SHA-256.
	RequireHash bool
	// BaseURLOverride replaces scheme and host of every catalog URL.
	BaseURLOverride string
	Registry        Registry
	Mirror          Mirror
	Logger          *zap.SugaredLogger
}

// Fetcher resolves datasets to cached files.
type Fetcher struct {
	opts   Options
	client *http.Client
	log    *zap.SugaredLogger
}

// New creates a Fetcher rooted at opts.CacheDir.
func New(opts Options) (*Fetcher, error) {
	if opts.CacheDir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(opts.CacheDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if opts.BaseURLOverride != "" {
		if _, err := url.Parse(opts.BaseURLOverride); err != nil {
			return nil, fmt.Errorf("invalid base URL override: %w", err)
		}
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fetcher{opts: opts, client: client, log: logger}, nil
}

// CacheDir returns the cache root.
func (f *Fetcher) CacheDir() string {
	return f.opts.CacheDir
}

// CacheKey is the directory name for a URL: its hex SHA-256.
func CacheKey(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// FileName is the cache file name for a URL: the last path element without
// query string.
func FileName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}

// Fetch returns the cached file for spec, downloading it on a miss. For
// archives the member for layer is extracted and selected.
func (f *Fetcher) Fetch(ctx context.Context, spec domain.DatasetSpec, layer string) (CachedFile, error) {
	if f.opts.RequireHash && spec.SHA256 == "" {
		return CachedFile{}, &domain.FetchError{URL: spec.URL, Err: domain.ErrHashRequired}
	}

	key := CacheKey(spec.URL)
	dir := filepath.Join(f.opts.CacheDir, key)
	download := filepath.Join(dir, FileName(spec.URL))

	cf, err := f.ensure(ctx, spec, key, dir, download)
	if err != nil {
		return CachedFile{}, &domain.FetchError{URL: spec.URL, Err: err}
	}

	if !spec.Archive {
		cf.Path = cf.Download
		return cf, nil
	}

	sel, err := spec.Member(layer)
	if err != nil {
		return CachedFile{}, err
	}
	extractDir := download + ".unzip"
	members, err := Extract(download, extractDir)
	if err != nil {
		return CachedFile{}, &domain.FetchError{URL: spec.URL, Err: err}
	}
	cf.Members = members
	member, err := SelectMember(filepath.Base(download), members, sel)
	if err != nil {
		return CachedFile{}, err
	}
	cf.Path = filepath.Join(extractDir, filepath.FromSlash(member))

	f.record(ctx, cf)
	return cf, nil
}

// ensure makes download present and verified.
func (f *Fetcher) ensure(ctx context.Context, spec domain.DatasetSpec, key, dir, download string) (CachedFile, error) {
	prior, known, err := f.lookup(ctx, spec.URL)
	if err != nil {
		f.log.Warnw("registry lookup failed", "url", spec.URL, "error", err)
	}

	if st, err := os.Stat(download); err == nil {
		cf := CachedFile{Download: download, URL: spec.URL, Size: st.Size(), FetchedAt: st.ModTime(), Cached: true}
		if unchanged(spec, download, st, prior, known) {
			cf.SHA256 = prior.SHA256
			cf.FetchedAt = prior.FetchedAt
			return cf, nil
		}
		sum, err := hashFile(download)
		if err != nil {
			return CachedFile{}, err
		}
		err = f.verify(spec, sum, prior, known)
		if err == nil {
			cf.SHA256 = sum
			f.record(ctx, cf)
			return cf, nil
		}
		if !errors.Is(err, domain.ErrHashMismatch) {
			return CachedFile{}, err
		}
		f.log.Warnw("cached file failed verification, downloading again", "dataset", spec.Name, "path", download, "error", err)
		if err := os.Remove(download); err != nil {
			return CachedFile{}, fmt.Errorf("failed to remove stale download: %w", err)
		}
		if err := os.RemoveAll(download + ".unzip"); err != nil {
			return CachedFile{}, fmt.Errorf("failed to remove stale extraction: %w", err)
		}
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return CachedFile{}, fmt.Errorf("failed to create cache entry: %w", err)
	}
	tmp := filepath.Join(dir, "."+uuid.NewString()+".part")
	defer func() { _ = os.Remove(tmp) }()

	//nolint:gosec // G304: tmp is inside the cache directory.
	file, err := os.Create(tmp)
	if err != nil {
		return CachedFile{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	h := sha256.New()

	mirrorKey := key + "/" + filepath.Base(download)
	fromMirror := f.fromMirror(ctx, mirrorKey, file, h)
	if !fromMirror {
		if err := f.download(ctx, f.resolve(spec.URL), file, h); err != nil {
			_ = file.Close()
			return CachedFile{}, err
		}
	}
	size, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		_ = file.Close()
		return CachedFile{}, err
	}
	if err := file.Close(); err != nil {
		return CachedFile{}, err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if err := f.verify(spec, sum, prior, known); err != nil {
		return CachedFile{}, err
	}
	if err := os.Rename(tmp, download); err != nil {
		return CachedFile{}, fmt.Errorf("failed to move download into cache: %w", err)
	}
	f.log.Infow("dataset cached", "dataset", spec.Name, "path", download, "bytes", size, "sha256", sum, "mirror", fromMirror)

	cf := CachedFile{Download: download, URL: spec.URL, SHA256: sum, Size: size, FetchedAt: time.Now().UTC()}
	f.record(ctx, cf)
	if !fromMirror {
		f.toMirror(ctx, mirrorKey, download, size)
	}
	return cf, nil
}

// unchanged reports whether the registry already vouches for the cached
// download: same path and size, not modified since it was recorded, and
// recorded under the pinned hash if there is one.
func unchanged(spec domain.DatasetSpec, download string, st os.FileInfo, prior registry.Entry, known bool) bool {
	if !known || prior.SHA256 == "" || prior.Path != download {
		return false
	}
	if prior.Size != st.Size() || st.ModTime().After(prior.FetchedAt) {
		return false
	}
	return spec.SHA256 == "" || strings.EqualFold(prior.SHA256, spec.SHA256)
}

// verify enforces a pinned hash, or the hash first recorded for the URL.
func (f *Fetcher) verify(spec domain.DatasetSpec, sum string, prior registry.Entry, known bool) error {
	switch {
	case spec.SHA256 != "":
		if !strings.EqualFold(sum, spec.SHA256) {
			return fmt.Errorf("%w: got %s, pinned %s", domain.ErrHashMismatch, sum, spec.SHA256)
		}
	case known && prior.SHA256 != "":
		if !strings.EqualFold(sum, prior.SHA256) {
			return fmt.Errorf("%w: got %s, first recorded %s", domain.ErrHashMismatch, sum, prior.SHA256)
		}
	default:
		f.log.Infow("no pinned hash, trusting first download", "dataset", spec.Name, "sha256", sum)
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, rawURL string, file *os.File, h hash.Hash) error {
	op := func() error {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		if err := file.Truncate(0); err != nil {
			return backoff.Permanent(err)
		}
		h.Reset()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("GET %s: %s", rawURL, resp.Status)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("GET %s: %s", rawURL, resp.Status))
		}

		if _, err := io.Copy(io.MultiWriter(file, h), resp.Body); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.opts.RetryInterval
	expo.Reset()
	b := backoff.WithContext(backoff.WithMaxRetries(expo, f.opts.MaxRetries), ctx)

	return backoff.RetryNotify(op, b, func(err error, d time.Duration) {
		f.log.Warnw("download failed, retrying", "url", rawURL, "error", err, "retry_in", d)
	})
}

func (f *Fetcher) fromMirror(ctx context.Context, key string, file *os.File, h hash.Hash) bool {
	if f.opts.Mirror == nil {
		return false
	}
	found, err := f.opts.Mirror.Get(ctx, key, io.MultiWriter(file, h))
	if err != nil || !found {
		if err != nil {
			f.log.Warnw("mirror lookup failed", "key", key, "error", err)
		}
		h.Reset()
		_, _ = file.Seek(0, io.SeekStart)
		_ = file.Truncate(0)
		return false
	}
	return true
}

func (f *Fetcher) toMirror(ctx context.Context, key, file string, size int64) {
	if f.opts.Mirror == nil {
		return
	}
	//nolint:gosec // G304: file is inside the cache directory.
	r, err := os.Open(file)
	if err != nil {
		f.log.Warnw("mirror upload skipped", "key", key, "error", err)
		return
	}
	defer func() { _ = r.Close() }()
	if err := f.opts.Mirror.Put(ctx, key, r, size); err != nil {
		f.log.Warnw("mirror upload failed", "key", key, "error", err)
	}
}

// resolve applies BaseURLOverride to a catalog URL.
func (f *Fetcher) resolve(rawURL string) string {
	if f.opts.BaseURLOverride == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	base, _ := url.Parse(f.opts.BaseURLOverride)
	u.Scheme = base.Scheme
	u.Host = base.Host
	u.Path = strings.TrimSuffix(base.Path, "/") + u.Path
	return u.String()
}

func (f *Fetcher) lookup(ctx context.Context, rawURL string) (registry.Entry, bool, error) {
	if f.opts.Registry == nil {
		return registry.Entry{}, false, nil
	}
	return f.opts.Registry.Lookup(ctx, rawURL)
}

func (f *Fetcher) record(ctx context.Context, cf CachedFile) {
	if f.opts.Registry == nil {
		return
	}
	err := f.opts.Registry.Record(ctx, registry.Entry{
		URL:       cf.URL,
		Path:      cf.Download,
		SHA256:    cf.SHA256,
		Size:      cf.Size,
		FetchedAt: cf.FetchedAt,
		Members:   cf.Members,
	})
	if err != nil {
		f.log.Warnw("registry write failed", "url", cf.URL, "error", err)
	}
}

func hashFile(p string) (string, error) {
	//nolint:gosec // G304: p is inside the cache directory.
	file, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
