// Package fetch turns resource URLs into base64 payloads with failure
// isolation: a broken or slow resource degrades to a placeholder (or an
// empty payload) instead of failing the render that needed it.
package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single resource fetch.
const DefaultTimeout = 30 * time.Second

// Loader is the subset of the htmltoimage.Loader interface the fetcher needs.
type Loader interface {
	Load(ctx context.Context, uri string) ([]byte, error)
	Sanitize(ctx context.Context, uri string) (string, error)
}

// Fetcher fetches resources and encodes them as base64 payloads.
type Fetcher struct {
	Loader  Loader
	Timeout time.Duration

	// CacheBust appends a timestamp query parameter to every fetch URL,
	// defeating stale intermediary caches.
	CacheBust bool

	// Placeholder is the base64 content substituted on fetch failure. Empty
	// means failures resolve to an empty payload.
	Placeholder string

	Log *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// SplitDataURI splits a data URI into the content after the first comma.
// Returns "" when the input is not a usable data URI.
func SplitDataURI(uri string) string {
	if !strings.HasPrefix(uri, "data:") {
		return ""
	}
	if i := strings.IndexByte(uri, ','); i >= 0 {
		return uri[i+1:]
	}
	return ""
}

// FetchBase64 fetches url and returns its bytes base64-encoded. Resource
// failures (denied, unreachable, non-2xx, timeout) never return an error:
// they resolve to the configured placeholder, or to an empty payload after
// logging. A single broken resource must not abort the entire render.
func (f *Fetcher) FetchBase64(ctx context.Context, url string) (string, error) {
	if f.Loader == nil {
		return f.recover(url, fmt.Errorf("no loader configured")), nil
	}

	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := url
	if f.CacheBust {
		target = bust(target, f.clock())
	}

	sanitized, err := f.Loader.Sanitize(ctx, target)
	if err != nil {
		return f.recover(url, err), nil
	}

	data, err := f.Loader.Load(ctx, sanitized)
	if err != nil {
		return f.recover(url, err), nil
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func (f *Fetcher) recover(url string, cause error) string {
	log := f.Log
	if log == nil {
		log = slog.Default()
	}
	if f.Placeholder != "" {
		log.Debug("htmltoimage: resource fetch failed, using placeholder", "url", url, "error", cause)
		return f.Placeholder
	}
	log.Warn("htmltoimage: resource fetch failed", "url", url, "error", cause)
	return ""
}

func (f *Fetcher) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// bust appends a millisecond timestamp query parameter.
func bust(url string, at time.Time) string {
	sep := "?"
	if strings.ContainsRune(url, '?') {
		sep = "&"
	}
	return url + sep + "t=" + strconv.FormatInt(at.UnixMilli(), 10)
}
