package inline

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"sync"

	"github.com/aymerick/douceur/parser"
	_ "golang.org/x/image/webp"
	"golang.org/x/net/html"
)

// ImageInliner walks a cloned tree and replaces every image reference, both
// url() references in style attributes and <img> sources, with embedded
// data.
type ImageInliner struct {
	Inliner *Inliner
	Fetch   FetchFunc

	// BaseURL is the document base against which relative references
	// resolve. Empty means references pass through unresolved.
	BaseURL string

	// Placeholder reports whether a fallback payload is configured. With a
	// placeholder, a broken <img> recovers like background inlining does;
	// without one the failure propagates, surfacing broken image content.
	Placeholder bool

	Log *slog.Logger
}

// InlineTree inlines node and all of its descendants. Sibling subtrees are
// processed concurrently; the first error wins. Non-element nodes pass
// through untouched.
func (ii *ImageInliner) InlineTree(ctx context.Context, n *html.Node) error {
	if n.Type != html.ElementNode {
		return nil
	}

	if err := ii.inlineStyleAttr(ctx, n); err != nil {
		return err
	}
	if n.Data == "img" {
		return ii.inlineImg(ctx, n)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		wg.Add(1)
		go func(c *html.Node) {
			defer wg.Done()
			if err := ii.InlineTree(ctx, c); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return firstErr
}

// inlineStyleAttr rewrites url() references in the element's style attribute,
// preserving each declaration's priority flag.
func (ii *ImageInliner) inlineStyleAttr(ctx context.Context, n *html.Node) error {
	style := attrValue(n, "style")
	if style == "" || !ShouldProcess(style) {
		return nil
	}

	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		// Unparseable declaration block: inline the raw text wholesale.
		inlined, err := ii.Inliner.InlineAll(ctx, style, ii.BaseURL)
		if err != nil {
			return err
		}
		setAttr(n, "style", inlined)
		return nil
	}

	var b strings.Builder
	for _, d := range decls {
		value := d.Value
		if ShouldProcess(value) {
			value, err = ii.Inliner.InlineAll(ctx, value, ii.BaseURL)
			if err != nil {
				return err
			}
		}
		b.WriteString(d.Property)
		b.WriteString(": ")
		b.WriteString(value)
		if d.Important {
			b.WriteString(" !important")
		}
		b.WriteString("; ")
	}
	setAttr(n, "style", strings.TrimSpace(b.String()))
	return nil
}

// inlineImg replaces the element's src with embedded data and verifies the
// embedded bytes decode, the analog of awaiting the image's load-or-error
// signal before rasterization reads its pixels.
func (ii *ImageInliner) inlineImg(ctx context.Context, n *html.Node) error {
	src := attrValue(n, "src")
	if src == "" || strings.HasPrefix(src, "data:") {
		return nil
	}

	resolved, err := ResolveURL(ii.BaseURL, src)
	if err != nil {
		return err
	}
	content, err := ii.Fetch(ctx, resolved)
	if err != nil {
		return err
	}
	if content == "" {
		if ii.Placeholder {
			// Drop the unreachable reference so the output stays
			// self-contained.
			setAttr(n, "src", "data:,")
			return nil
		}
		return fmt.Errorf("htmltoimage: image %q failed to load", src)
	}

	mime := MimeForURL(src)
	if err := verifyDecodes(content, mime); err != nil {
		if ii.Placeholder {
			log := ii.Log
			if log == nil {
				log = slog.Default()
			}
			log.Warn("htmltoimage: embedded image does not decode", "url", src, "error", err)
			return nil
		}
		return fmt.Errorf("htmltoimage: image %q: %w", src, err)
	}

	setAttr(n, "src", DataURI(content, mime))
	return nil
}

// verifyDecodes confirms an embedded payload parses as an image. SVG payloads
// are not pixel-decodable and pass through.
func verifyDecodes(content, mime string) error {
	if mime == "image/svg+xml" || mime == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		return fmt.Errorf("broken base64 payload: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("payload does not decode as image: %w", err)
	}
	return nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
