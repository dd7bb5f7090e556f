// Package browser hosts live documents in a real rendering engine via the
// Chrome DevTools protocol. It provides the full-fidelity counterparts of
// the static engine and the soft surface: computed style, cascade, layout,
// and vector rasterization all come from the browser itself.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/net/html"
)

// Config configures a Browser.
type Config struct {
	// ControlURL is the WebSocket URL of an external browser instance.
	// Empty launches a local headless browser.
	ControlURL string

	// NavigateTimeout bounds page navigation and load. Default: 30s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Browser owns a browser process (or a connection to one) and hands out
// pages. Close releases the process.
type Browser struct {
	cfg     Config
	lnch    *launcher.Launcher
	browser *rod.Browser
}

// Open launches a local headless browser, or connects to cfg.ControlURL
// when set.
func Open(cfg Config) (*Browser, error) {
	cfg.defaults()
	b := &Browser{cfg: cfg}

	wsURL := cfg.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		b.lnch = l
		wsURL = u
		cfg.Logger.Info("browser: launched local instance", "url", wsURL)
	} else {
		cfg.Logger.Info("browser: connecting to remote", "url", wsURL)
	}

	rb := rod.New().ControlURL(wsURL)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = rb
	return b, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return fmt.Errorf("browser: close: %w", err)
		}
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return nil
}

// NewPage opens a tab and navigates it to url, waiting for the load event.
func (b *Browser) NewPage(ctx context.Context, url string) (*Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return &Page{page: page, log: b.cfg.Logger}, nil
}

// NewPageFromHTML opens a tab and loads the given markup into it directly.
func (b *Browser) NewPageFromHTML(ctx context.Context, markup string) (*Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	if err := page.Context(ctx).SetDocumentContent(markup); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: set document content: %w", err)
	}
	return &Page{page: page, log: b.cfg.Logger}, nil
}

func (b *Browser) blankPage(ctx context.Context) (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	return page.Context(ctx), nil
}

// Page is one live document. It hands out node handles and implements the
// engine interface the snapshot pipeline queries.
type Page struct {
	page *rod.Page
	log  *slog.Logger
}

// Close closes the tab.
func (p *Page) Close() error {
	if p.page != nil {
		return p.page.Close()
	}
	return nil
}

// Root returns the document body as the default snapshot root.
func (p *Page) Root(ctx context.Context) (*Node, error) {
	return p.Element(ctx, "body")
}

// Element returns a handle on the first element matching the CSS selector.
// The element's current markup is captured once; style and geometry queries
// stay live against the browser.
func (p *Page) Element(ctx context.Context, selector string) (*Node, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: element %q: %w", selector, err)
	}
	res, err := el.Context(ctx).Eval(`() => this.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: reading markup of %q: %w", selector, err)
	}
	parsed, err := parseElement(res.Value.Str())
	if err != nil {
		return nil, err
	}
	return &Node{el: el, h: parsed}, nil
}

// parseElement parses a serialized element back into a tree whose child
// ordering mirrors the live childNodes list, so index paths resolve the same
// node on both sides.
func parseElement(outer string) (*html.Node, error) {
	trimmed := strings.TrimSpace(outer)
	if strings.HasPrefix(strings.ToLower(trimmed), "<body") {
		doc, err := html.Parse(strings.NewReader(trimmed))
		if err != nil {
			return nil, fmt.Errorf("browser: parsing captured markup: %w", err)
		}
		if body := findElement(doc, "body"); body != nil {
			return body, nil
		}
		return nil, fmt.Errorf("browser: captured markup lost its body")
	}

	ctxNode := &html.Node{Type: html.ElementNode, Data: "div"}
	nodes, err := html.ParseFragment(strings.NewReader(trimmed), ctxNode)
	if err != nil {
		return nil, fmt.Errorf("browser: parsing captured markup: %w", err)
	}
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n, nil
		}
	}
	return nil, fmt.Errorf("browser: captured markup has no element")
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}
