package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"github.com/pureZjr/html-to-image/dom"
)

// Node is a handle on a live browser node. Tree structure comes from a
// one-time markup capture; style, geometry, form state, and canvas pixels
// are queried live, addressed by the node's child-index path from the
// captured root element.
type Node struct {
	// el is the captured root's live element, shared by every node of the
	// handle tree.
	el   *rod.Element
	h    *html.Node
	path []int
}

func (n *Node) Kind() dom.Kind {
	if n.h.Type == html.TextNode {
		return dom.KindText
	}
	return dom.KindForTag(n.h.Data, n.h.Namespace)
}

func (n *Node) Tag() string {
	if n.h.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.h.Data)
}

func (n *Node) Namespace() string { return n.h.Namespace }

func (n *Node) Attrs() []dom.Attr {
	attrs := make([]dom.Attr, 0, len(n.h.Attr))
	for _, a := range n.h.Attr {
		attrs = append(attrs, dom.Attr{Key: a.Key, Value: a.Val})
	}
	return attrs
}

func (n *Node) Text() string {
	if n.h.Type == html.TextNode {
		return n.h.Data
	}
	return ""
}

// Value queries the control's live value, which reflects user edits the
// value attribute never sees. Falls back to the captured markup on error.
func (n *Node) Value() string {
	res, err := n.el.Eval(jsWalkPrefix+`
		const el = walk(this, path);
		return el && el.value !== undefined ? String(el.value) : "";
	}`, n.path)
	if err != nil {
		return staticValue(n.h)
	}
	return res.Value.Str()
}

// Children returns child handles in childNodes order. Comments occupy an
// index but are not returned, keeping paths aligned with the live tree.
func (n *Node) Children() []dom.Node {
	var children []dom.Node
	idx := 0
	for c := n.h.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode || c.Type == html.TextNode {
			path := make([]int, len(n.path)+1)
			copy(path, n.path)
			path[len(n.path)] = idx
			children = append(children, &Node{el: n.el, h: c, path: path})
		}
		idx++
	}
	return children
}

// jsWalkPrefix opens a function body that declares a walk helper resolving a
// child-index path to a live node. Snippets using it must close the brace.
const jsWalkPrefix = `(path) => {
	const walk = (root, p) => {
		let n = root;
		for (const i of p) {
			if (!n) return null;
			n = n.childNodes[i];
		}
		return n;
	};`

// Style returns the browser's fully computed style for the node or one of
// its pseudo-elements.
func (p *Page) Style(ctx context.Context, n dom.Node, pseudo string) (dom.Style, error) {
	bn, err := asBrowserNode(n)
	if err != nil {
		return dom.Style{}, err
	}
	if bn.h.Type != html.ElementNode {
		return dom.Style{}, nil
	}
	res, err := bn.el.Context(ctx).Eval(`(path, pseudo) => {
		const walk = (root, p) => {
			let n = root;
			for (const i of p) {
				if (!n) return null;
				n = n.childNodes[i];
			}
			return n;
		};
		const el = walk(this, path);
		if (!el) return [];
		const cs = getComputedStyle(el, pseudo || null);
		return Array.from(cs).map(prop => [
			prop,
			cs.getPropertyValue(prop),
			cs.getPropertyPriority(prop),
		]);
	}`, bn.path, pseudo)
	if err != nil {
		return dom.Style{}, fmt.Errorf("browser: computed style query: %w", err)
	}

	var st dom.Style
	for _, entry := range res.Value.Arr() {
		triple := entry.Arr()
		if len(triple) != 3 {
			continue
		}
		st.Declarations = append(st.Declarations, dom.Declaration{
			Property:  triple[0].Str(),
			Value:     triple[1].Str(),
			Important: triple[2].Str() == "important",
		})
	}
	return st, nil
}

// Metrics returns the node's border-inclusive scroll geometry.
func (p *Page) Metrics(ctx context.Context, n dom.Node) (dom.Metrics, error) {
	bn, err := asBrowserNode(n)
	if err != nil {
		return dom.Metrics{}, err
	}
	res, err := bn.el.Context(ctx).Eval(`(path) => {
		const walk = (root, p) => {
			let n = root;
			for (const i of p) {
				if (!n) return null;
				n = n.childNodes[i];
			}
			return n;
		};
		const el = walk(this, path);
		if (!el) return {width: 0, height: 0};
		const cs = getComputedStyle(el);
		const extra = (prop) => parseFloat(cs.getPropertyValue(prop)) || 0;
		return {
			width: el.scrollWidth + extra("border-left-width") + extra("border-right-width"),
			height: el.scrollHeight + extra("border-top-width") + extra("border-bottom-width"),
		};
	}`, bn.path)
	if err != nil {
		return dom.Metrics{}, fmt.Errorf("browser: metrics query: %w", err)
	}
	return dom.Metrics{
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}, nil
}

// BaseURL returns the document's base URL, against which relative resource
// references in attributes and style text resolve.
func (p *Page) BaseURL(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.baseURI || ""`)
	if err != nil {
		return "", fmt.Errorf("browser: base URL query: %w", err)
	}
	return res.Value.Str(), nil
}

// StyleSheets enumerates the document's stylesheets. Sheets whose rules the
// browser refuses to expose come back with Err set instead of failing the
// enumeration. Inline sheets inherit the document base so their relative
// references resolve like the browser resolves them.
func (p *Page) StyleSheets(ctx context.Context) ([]dom.StyleSheet, error) {
	res, err := p.page.Context(ctx).Eval(`() => {
		const out = [];
		for (const sheet of document.styleSheets) {
			const entry = {href: sheet.href || document.baseURI || "", css: "", err: ""};
			try {
				let css = "";
				for (const rule of sheet.cssRules) {
					css += rule.cssText + "\n";
				}
				entry.css = css;
			} catch (e) {
				entry.err = String(e);
			}
			out.push(entry);
		}
		return out;
	}`)
	if err != nil {
		return nil, fmt.Errorf("browser: stylesheet enumeration: %w", err)
	}

	var sheets []dom.StyleSheet
	for _, entry := range res.Value.Arr() {
		sheet := dom.StyleSheet{
			BaseURL: entry.Get("href").Str(),
			CSS:     entry.Get("css").Str(),
		}
		if msg := entry.Get("err").Str(); msg != "" {
			sheet.Err = errors.New(msg)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

// CanvasData captures the canvas's current pixels as a PNG data URI.
func (p *Page) CanvasData(ctx context.Context, n dom.Node) (string, error) {
	bn, err := asBrowserNode(n)
	if err != nil {
		return "", err
	}
	res, err := bn.el.Context(ctx).Eval(`(path) => {
		const walk = (root, p) => {
			let n = root;
			for (const i of p) {
				if (!n) return null;
				n = n.childNodes[i];
			}
			return n;
		};
		const el = walk(this, path);
		if (!el || typeof el.toDataURL !== "function") {
			throw new Error("not a canvas");
		}
		return el.toDataURL();
	}`, bn.path)
	if err != nil {
		return "", fmt.Errorf("browser: canvas capture: %w", err)
	}
	return res.Value.Str(), nil
}

func asBrowserNode(n dom.Node) (*Node, error) {
	bn, ok := n.(*Node)
	if !ok {
		return nil, fmt.Errorf("browser: engine got foreign node %T", n)
	}
	return bn, nil
}

// staticValue mirrors the static fallback for form-control values.
func staticValue(h *html.Node) string {
	if strings.EqualFold(h.Data, "textarea") {
		var b strings.Builder
		for c := h.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String()
	}
	for _, a := range h.Attr {
		if a.Key == "value" {
			return a.Val
		}
	}
	return ""
}
