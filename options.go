package htmltoimage

import (
	"log/slog"
	"time"

	"github.com/pureZjr/html-to-image/dom"
)

// Option configures a Converter.
type Option func(*config)

type config struct {
	engine       dom.Engine
	surface      Surface
	loader       Loader
	logger       *slog.Logger
	fetchTimeout time.Duration
}

func defaultConfig() *config {
	return &config{
		loader:       NewHTTPLoader(nil),
		fetchTimeout: 30 * time.Second,
	}
}

// WithEngine sets the rendering engine queried for computed style and
// geometry. Without it, static nodes from dom.FromHTML are served by a
// dom.StaticEngine automatically.
func WithEngine(e dom.Engine) Option {
	return func(c *config) {
		c.engine = e
	}
}

// WithSurface sets the drawing surface used for raster outputs. The default
// is a limited pure-Go surface; use browser.Surface for full fidelity.
func WithSurface(s Surface) Option {
	return func(c *config) {
		c.surface = s
	}
}

// WithLoader sets the resource loader used to fetch external images, fonts
// and stylesheet assets. The default allows HTTP(S); use DenyLoader to
// forbid all network access.
func WithLoader(l Loader) Option {
	return func(c *config) {
		c.loader = l
	}
}

// WithLogger sets the logger for recovered resource failures and skipped
// stylesheets. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithFetchTimeout bounds each individual resource fetch. Default 30s.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.fetchTimeout = d
	}
}

// RenderOption configures a single render. The resulting configuration is
// immutable once the render starts and is passed down through every
// component, so concurrent renders never observe each other's settings.
type RenderOption func(*renderConfig)

type renderConfig struct {
	filter      dom.Filter
	background  string
	width       int
	height      int
	style       map[string]string
	quality     float64
	placeholder string
	cacheBust   bool
}

func newRenderConfig(opts []RenderOption) *renderConfig {
	rc := &renderConfig{quality: 1.0}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// WithFilter excludes nodes (and their subtrees) for which the predicate
// returns false. The predicate is not evaluated on the root.
func WithFilter(f dom.Filter) RenderOption {
	return func(rc *renderConfig) {
		rc.filter = f
	}
}

// WithBackground fills the raster surface with a CSS color before drawing.
func WithBackground(cssColor string) RenderOption {
	return func(rc *renderConfig) {
		rc.background = cssColor
	}
}

// WithWidth overrides the auto-measured snapshot width in pixels.
func WithWidth(px int) RenderOption {
	return func(rc *renderConfig) {
		rc.width = px
	}
}

// WithHeight overrides the auto-measured snapshot height in pixels.
func WithHeight(px int) RenderOption {
	return func(rc *renderConfig) {
		rc.height = px
	}
}

// WithStyle applies extra CSS properties to the clone root after all other
// processing.
func WithStyle(props map[string]string) RenderOption {
	return func(rc *renderConfig) {
		rc.style = props
	}
}

// WithQuality sets the JPEG encoding quality in [0,1]. Default 1.0.
func WithQuality(q float64) RenderOption {
	return func(rc *renderConfig) {
		rc.quality = q
	}
}

// WithPlaceholder substitutes the given data URI for resources that fail to
// fetch. Without a placeholder, a failed resource resolves to an empty
// payload (a blank region) for style references and to an error for image
// elements.
func WithPlaceholder(dataURI string) RenderOption {
	return func(rc *renderConfig) {
		rc.placeholder = dataURI
	}
}

// WithCacheBust appends a timestamp query parameter to every resource fetch.
func WithCacheBust() RenderOption {
	return func(rc *renderConfig) {
		rc.cacheBust = true
	}
}
