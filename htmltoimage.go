// Package htmltoimage captures a visual tree as a fully self-contained
// vector snapshot and rasterizes it to PNG, JPEG, raw bytes, or a pixel
// buffer.
//
// A snapshot is built in stages: the subtree is cloned with its computed
// style, pseudo-element content, form-control state, and canvas pixels
// captured; web fonts and image resources are fetched and embedded as data
// URIs; the inlined clone is wrapped in an SVG foreign object sized to the
// original subtree; and a drawing surface turns that vector document into
// pixels.
//
// Basic usage:
//
//	conv, err := htmltoimage.New()
//	if err != nil { ... }
//	node, err := dom.FromHTML(strings.NewReader(markup))
//	if err != nil { ... }
//	png, err := conv.ToPNG(ctx, node, htmltoimage.WithBackground("white"))
package htmltoimage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/net/html"

	"github.com/pureZjr/html-to-image/dom"
	"github.com/pureZjr/html-to-image/internal/fetch"
	"github.com/pureZjr/html-to-image/internal/inline"
	"github.com/pureZjr/html-to-image/internal/raster"
	"github.com/pureZjr/html-to-image/internal/snapshot"
	"github.com/pureZjr/html-to-image/internal/svgdoc"
)

// Surface turns an assembled vector data URI into a pixel buffer of the
// given size, filling background first when non-nil.
type Surface interface {
	Draw(ctx context.Context, svgURI string, width, height int, background color.Color) (*image.RGBA, error)
}

// Converter renders visual trees to images. It is safe for concurrent use;
// all per-render state travels in RenderOptions.
type Converter struct {
	engine       dom.Engine
	surface      Surface
	loader       Loader
	log          *slog.Logger
	fetchTimeout time.Duration
}

// New builds a Converter. Without options it fetches resources over HTTP(S),
// serves static nodes with an inline-style engine, and draws with the
// limited pure-Go surface.
func New(opts ...Option) (*Converter, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.loader == nil {
		return nil, errors.New("htmltoimage: nil loader")
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	surface := cfg.surface
	if surface == nil {
		surface = &raster.SoftSurface{Log: logger}
	}
	return &Converter{
		engine:       cfg.engine,
		surface:      surface,
		loader:       cfg.loader,
		log:          logger,
		fetchTimeout: cfg.fetchTimeout,
	}, nil
}

// Close releases the surface and engine when they hold external resources,
// such as a browser connection.
func (c *Converter) Close() error {
	var errs []error
	if closer, ok := c.surface.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if closer, ok := c.engine.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}

// ToSVG captures node and returns the snapshot as a vector-image data URI
// with every external resource embedded.
func (c *Converter) ToSVG(ctx context.Context, node dom.Node, opts ...RenderOption) (string, error) {
	rc := newRenderConfig(opts)
	svgURI, _, _, err := c.assemble(ctx, node, rc)
	return svgURI, err
}

// ToPNG captures node and returns a PNG data URI.
func (c *Converter) ToPNG(ctx context.Context, node dom.Node, opts ...RenderOption) (string, error) {
	rc := newRenderConfig(opts)
	img, err := c.draw(ctx, node, rc)
	if err != nil {
		return "", err
	}
	return raster.PNGDataURI(img)
}

// ToJPEG captures node and returns a JPEG data URI at the configured quality.
func (c *Converter) ToJPEG(ctx context.Context, node dom.Node, opts ...RenderOption) (string, error) {
	rc := newRenderConfig(opts)
	img, err := c.draw(ctx, node, rc)
	if err != nil {
		return "", err
	}
	return raster.JPEGDataURI(img, rc.quality)
}

// ToBlob captures node and returns raw PNG bytes.
func (c *Converter) ToBlob(ctx context.Context, node dom.Node, opts ...RenderOption) ([]byte, error) {
	rc := newRenderConfig(opts)
	img, err := c.draw(ctx, node, rc)
	if err != nil {
		return nil, err
	}
	return raster.PNGBytes(img)
}

// ToPixels captures node and returns the raw RGBA pixel buffer together with
// its dimensions.
func (c *Converter) ToPixels(ctx context.Context, node dom.Node, opts ...RenderOption) ([]byte, int, int, error) {
	rc := newRenderConfig(opts)
	img, err := c.draw(ctx, node, rc)
	if err != nil {
		return nil, 0, 0, err
	}
	return raster.Pixels(img), img.Bounds().Dx(), img.Bounds().Dy(), nil
}

func (c *Converter) draw(ctx context.Context, node dom.Node, rc *renderConfig) (*image.RGBA, error) {
	svgURI, width, height, err := c.assemble(ctx, node, rc)
	if err != nil {
		return nil, err
	}
	var bg color.Color
	if rc.background != "" {
		bg, err = raster.ParseColor(rc.background)
		if err != nil {
			return nil, err
		}
	}
	return c.surface.Draw(ctx, svgURI, width, height, bg)
}

// assemble runs the capture pipeline: clone, embed fonts, embed images,
// apply caller style overrides, measure, and wrap in a vector document.
func (c *Converter) assemble(ctx context.Context, node dom.Node, rc *renderConfig) (string, int, int, error) {
	engine, err := c.engineFor(node)
	if err != nil {
		return "", 0, 0, err
	}

	placeholder := fetch.SplitDataURI(rc.placeholder)
	if rc.placeholder != "" && placeholder == "" {
		c.log.Warn("htmltoimage: placeholder is not a data URI, ignoring", "placeholder", rc.placeholder)
	}

	fetcher := &fetch.Fetcher{
		Loader:      c.loader,
		Timeout:     c.fetchTimeout,
		CacheBust:   rc.cacheBust,
		Placeholder: placeholder,
		Log:         c.log,
	}
	inliner := &inline.Inliner{Fetch: fetcher.FetchBase64}

	cloner := &snapshot.Cloner{Engine: engine, Filter: rc.filter, Log: c.log}
	clone, err := cloner.Clone(ctx, node, true)
	if err != nil {
		return "", 0, 0, err
	}
	if clone == nil {
		return "", 0, 0, errors.New("htmltoimage: nothing to capture")
	}

	fonts, err := (&inline.FontResolver{Engine: engine, Inliner: inliner, Log: c.log}).ResolveAll(ctx)
	if err != nil {
		return "", 0, 0, err
	}
	if fonts != "" {
		prependStyleElement(clone, fonts)
	}

	imgInliner := &inline.ImageInliner{
		Inliner:     inliner,
		Fetch:       fetcher.FetchBase64,
		BaseURL:     c.baseURLFor(ctx, engine),
		Placeholder: placeholder != "",
		Log:         c.log,
	}
	if err := imgInliner.InlineTree(ctx, clone); err != nil {
		return "", 0, 0, err
	}

	applyStyleOverrides(clone, rc.style)

	width, height, err := c.measure(ctx, engine, node, rc)
	if err != nil {
		return "", 0, 0, err
	}
	if rc.width > 0 {
		appendStyle(clone, "width: "+strconv.Itoa(rc.width)+"px;")
	}
	if rc.height > 0 {
		appendStyle(clone, "height: "+strconv.Itoa(rc.height)+"px;")
	}

	svgURI, err := svgdoc.Assemble(clone, float64(width), float64(height))
	if err != nil {
		return "", 0, 0, err
	}
	return svgURI, width, height, nil
}

// baseResolver is implemented by engines that know the document's base URL,
// against which relative resource references resolve. Engines hosting a live
// page report it; parsed static markup has none.
type baseResolver interface {
	BaseURL(ctx context.Context) (string, error)
}

func (c *Converter) baseURLFor(ctx context.Context, engine dom.Engine) string {
	br, ok := engine.(baseResolver)
	if !ok {
		return ""
	}
	base, err := br.BaseURL(ctx)
	if err != nil {
		c.log.Warn("htmltoimage: reading document base URL", "error", err)
		return ""
	}
	return base
}

// engineFor resolves the engine serving this render. Static nodes fall back
// to an inline-style engine when none was configured.
func (c *Converter) engineFor(node dom.Node) (dom.Engine, error) {
	if c.engine != nil {
		return c.engine, nil
	}
	if sn, ok := node.(*dom.StaticNode); ok {
		return &dom.StaticEngine{Root: sn}, nil
	}
	return nil, fmt.Errorf("htmltoimage: no engine configured for %T nodes", node)
}

// measure resolves the snapshot dimensions: explicit overrides win, the
// engine's scroll geometry fills in the rest.
func (c *Converter) measure(ctx context.Context, engine dom.Engine, node dom.Node, rc *renderConfig) (int, int, error) {
	width, height := rc.width, rc.height
	if width > 0 && height > 0 {
		return width, height, nil
	}
	m, err := engine.Metrics(ctx, node)
	if err != nil {
		return 0, 0, fmt.Errorf("htmltoimage: measuring snapshot root: %w", err)
	}
	if width <= 0 {
		width = int(m.Width)
	}
	if height <= 0 {
		height = int(m.Height)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, errors.New("htmltoimage: cannot determine snapshot size; set WithWidth and WithHeight")
	}
	return width, height, nil
}

// applyStyleOverrides writes the caller's extra properties onto the clone
// root in stable order.
func applyStyleOverrides(clone *html.Node, props map[string]string) {
	if len(props) == 0 {
		return
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		appendStyle(clone, k+": "+props[k]+";")
	}
}

// prependStyleElement inserts a <style> with the given CSS as the clone's
// first child, ahead of content that may reference the embedded fonts.
func prependStyleElement(clone *html.Node, css string) {
	styleEl := &html.Node{Type: html.ElementNode, Data: "style"}
	styleEl.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	if clone.FirstChild != nil {
		clone.InsertBefore(styleEl, clone.FirstChild)
		return
	}
	clone.AppendChild(styleEl)
}

func appendStyle(n *html.Node, decl string) {
	existing := ""
	for i := range n.Attr {
		if n.Attr[i].Key == "style" {
			existing = n.Attr[i].Val
		}
	}
	if existing != "" {
		if existing[len(existing)-1] != ';' {
			existing += ";"
		}
		existing += " "
	}
	for i := range n.Attr {
		if n.Attr[i].Key == "style" {
			n.Attr[i].Val = existing + decl
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: "style", Val: existing + decl})
}
