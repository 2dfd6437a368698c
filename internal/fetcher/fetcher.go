// Package fetcher mirrors remote footprint datasets to local disk so the
// footprint loader can read them.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const etagSuffix = ".etag"

// Options configures the fetcher.
type Options struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond limits requests to any host. Zero means 2/s.
	RequestsPerSecond float64
}

// Fetcher downloads datasets with retry and conditional requests.
type Fetcher struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "addrverify/1.0"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	return &Fetcher{
		client:  &http.Client{Timeout: opts.Timeout},
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}
}

// IsRemote reports whether p is an http(s) URL rather than a local path.
func IsRemote(p string) bool {
	return strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://")
}

// Sync mirrors rawURL into dir and returns the local path to load: the
// downloaded file, or the extraction directory for .zip archives. The
// stored ETag is sent as If-None-Match so an unchanged dataset is not
// downloaded again. changed reports whether new bytes were written.
func (f *Fetcher) Sync(ctx context.Context, rawURL, dir string) (local string, changed bool, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false, eris.Wrap(err, "fetcher: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", false, eris.Errorf("fetcher: cannot name dataset from %s", u.Redacted())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, eris.Wrap(err, "fetcher: create directory")
	}

	file := filepath.Join(dir, name)
	local = file
	if strings.EqualFold(filepath.Ext(name), ".zip") {
		local = strings.TrimSuffix(file, filepath.Ext(file))
	}

	etag := ""
	if _, statErr := os.Stat(local); statErr == nil {
		if b, readErr := os.ReadFile(file + etagSuffix); readErr == nil {
			etag = strings.TrimSpace(string(b))
		}
	}

	resp, err := f.get(ctx, rawURL, etag)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotModified {
		zap.L().Info("fetcher: dataset unchanged", zap.String("path", local))
		return local, false, nil
	}

	n, err := writeFile(file, resp.Body)
	if err != nil {
		return "", false, err
	}
	if tag := resp.Header.Get("ETag"); tag != "" {
		if err := os.WriteFile(file+etagSuffix, []byte(tag), 0o644); err != nil {
			return "", false, eris.Wrap(err, "fetcher: write etag")
		}
	}

	if local != file {
		if err := os.RemoveAll(local); err != nil {
			return "", false, eris.Wrap(err, "fetcher: clear extraction directory")
		}
		if _, err := ExtractZIP(file, local); err != nil {
			return "", false, err
		}
	}

	zap.L().Info("fetcher: dataset downloaded",
		zap.String("host", u.Host),
		zap.String("path", local),
		zap.Int64("bytes", n),
	)
	return local, true, nil
}

// get issues a GET, retrying on transport errors, 429 and 5xx.
func (f *Fetcher) get(ctx context.Context, rawURL, etag string) (*http.Response, error) {
	var lastErr error
	for attempt := range f.opts.MaxRetries {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		if etag != "" {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := f.client.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d", resp.StatusCode)
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotModified:
			return resp, nil
		default:
			_ = resp.Body.Close()
			return nil, eris.Errorf("fetcher: unexpected status %d", resp.StatusCode)
		}

		zap.L().Warn("fetcher: request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
		if err := sleep(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
			return nil, eris.Wrap(err, "fetcher: backoff")
		}
	}
	return nil, eris.Wrap(lastErr, "fetcher: all retries exhausted")
}

// writeFile streams r into path through a temp file and rename.
func writeFile(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return 0, eris.Wrap(err, "fetcher: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return n, eris.Wrap(err, "fetcher: write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "fetcher: close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "fetcher: rename file")
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
