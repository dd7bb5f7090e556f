// Package inline rewrites style text and cloned markup so that every
// external resource reference becomes an embedded data URI.
package inline

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// FetchFunc fetches a URL and returns its bytes as a base64 payload. It
// mirrors the fetcher contract: resource failures resolve to a placeholder
// or empty payload rather than an error.
type FetchFunc func(ctx context.Context, url string) (string, error)

var urlPattern = regexp.MustCompile(`url\(['"]?([^'")]+?)['"]?\)`)

// mimes maps file extensions to MIME types for data URI assembly. Unknown
// extensions map to an empty MIME.
var mimes = map[string]string{
	"woff":  "application/font-woff",
	"woff2": "application/font-woff",
	"ttf":   "application/font-truetype",
	"eot":   "application/vnd.ms-fontobject",
	"png":   "image/png",
	"jpeg":  "image/jpeg",
	"jpg":   "image/jpeg",
	"gif":   "image/gif",
	"tiff":  "image/tiff",
	"svg":   "image/svg+xml",
}

// MimeForURL returns the MIME type implied by the URL's file extension.
func MimeForURL(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	dot := strings.LastIndexByte(u, '.')
	if dot < 0 || strings.ContainsRune(u[dot:], '/') {
		return ""
	}
	return mimes[strings.ToLower(u[dot+1:])]
}

// DataURI assembles a base64 data URI.
func DataURI(content, mime string) string {
	return "data:" + mime + ";base64," + content
}

// ShouldProcess reports whether text contains any url() reference syntax.
func ShouldProcess(text string) bool {
	return strings.Contains(text, "url(")
}

// Inliner rewrites url() references in style text into embedded data URIs.
type Inliner struct {
	Fetch FetchFunc
}

// ReadURLs returns the distinct non-embedded resource URLs referenced in
// text, in order of first occurrence.
func ReadURLs(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, m := range urlPattern.FindAllStringSubmatch(text, -1) {
		u := m[1]
		if strings.HasPrefix(u, "data:") || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
	}
	return urls
}

// InlineAll fetches every resource URL referenced in text and replaces each
// reference with a data URI. URLs are resolved against baseURL when given.
// Distinct URLs are processed sequentially so that each replacement re-scans
// the then-current text; text without url() syntax is returned unchanged
// with zero fetches.
func (i *Inliner) InlineAll(ctx context.Context, text, baseURL string) (string, error) {
	if !ShouldProcess(text) {
		return text, nil
	}
	for _, u := range ReadURLs(text) {
		resolved, err := ResolveURL(baseURL, u)
		if err != nil {
			return "", err
		}
		content, err := i.Fetch(ctx, resolved)
		if err != nil {
			return "", err
		}
		text = replaceURL(text, u, DataURI(content, MimeForURL(u)))
	}
	return text, nil
}

// replaceURL substitutes every url() occurrence of the exact URL substring
// with the data URI, keeping the surrounding quote style intact.
func replaceURL(text, u, dataURI string) string {
	re := regexp.MustCompile(`(url\(['"]?)` + regexp.QuoteMeta(u) + `(['"]?\))`)
	return re.ReplaceAllString(text, "${1}"+dataURI+"${2}")
}

// ResolveURL resolves ref against base using the platform URL semantics.
// An empty base or an already-absolute ref passes through unchanged.
func ResolveURL(base, ref string) (string, error) {
	if base == "" {
		return ref, nil
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("htmltoimage: invalid resource URL %q: %w", ref, err)
	}
	if r.IsAbs() {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("htmltoimage: invalid base URL %q: %w", base, err)
	}
	return b.ResolveReference(r).String(), nil
}
