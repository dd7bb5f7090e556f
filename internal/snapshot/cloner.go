// Package snapshot clones a live visual tree into a detached markup tree,
// capturing everything the live tree would otherwise lose: computed style,
// pseudo-element generated content, form-control state, and canvas pixels.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/net/html"

	"github.com/pureZjr/html-to-image/dom"
)

// classCounter feeds unique class names for materialized pseudo-elements.
// It is the only state shared across concurrent renders.
var classCounter atomic.Uint64

// Cloner copies a node tree while capturing its fully resolved visual state
// from the engine.
type Cloner struct {
	Engine dom.Engine
	Filter dom.Filter
	Log    *slog.Logger
}

// Clone recursively copies node. The filter is evaluated on every non-root
// node; a filtered node yields (nil, nil) and its parent simply does not
// receive a child for it. Children are cloned in strict original order.
func (c *Cloner) Clone(ctx context.Context, n dom.Node, root bool) (*html.Node, error) {
	if !root && c.Filter != nil && !c.Filter(n) {
		return nil, nil
	}

	kind := n.Kind()
	if kind == dom.KindText {
		return &html.Node{Type: html.TextNode, Data: n.Text()}, nil
	}

	var clone *html.Node
	if kind == dom.KindCanvas {
		// A structural clone of a canvas is visually blank; the clone is an
		// image carrying the canvas's current pixel contents instead.
		clone = c.canvasImage(ctx, n)
	} else {
		clone = shallowClone(n)
		for _, child := range n.Children() {
			cc, err := c.Clone(ctx, child, false)
			if err != nil {
				return nil, err
			}
			if cc != nil {
				clone.AppendChild(cc)
			}
		}
	}

	if err := c.postProcess(ctx, n, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

func shallowClone(n dom.Node) *html.Node {
	clone := &html.Node{
		Type:      html.ElementNode,
		Data:      n.Tag(),
		Namespace: n.Namespace(),
	}
	for _, a := range n.Attrs() {
		clone.Attr = append(clone.Attr, html.Attribute{Key: a.Key, Val: a.Value})
	}
	return clone
}

func (c *Cloner) canvasImage(ctx context.Context, n dom.Node) *html.Node {
	clone := &html.Node{Type: html.ElementNode, Data: "img"}
	// Keep the canvas geometry attributes so the image occupies the same box.
	for _, a := range n.Attrs() {
		if a.Key == "width" || a.Key == "height" {
			clone.Attr = append(clone.Attr, html.Attribute{Key: a.Key, Val: a.Value})
		}
	}
	data, err := c.Engine.CanvasData(ctx, n)
	if err != nil {
		c.log().Warn("htmltoimage: canvas snapshot failed", "error", err)
		return clone
	}
	clone.Attr = append(clone.Attr, html.Attribute{Key: "src", Val: data})
	return clone
}

// postProcess captures node-level state onto the clone, dispatched by kind.
func (c *Cloner) postProcess(ctx context.Context, n dom.Node, clone *html.Node) error {
	if err := c.copyStyle(ctx, n, clone); err != nil {
		return err
	}
	if err := c.materializePseudos(ctx, n, clone); err != nil {
		return err
	}

	switch n.Kind() {
	case dom.KindTextArea:
		// Live textarea content is state, not markup.
		for clone.FirstChild != nil {
			clone.RemoveChild(clone.FirstChild)
		}
		clone.AppendChild(&html.Node{Type: html.TextNode, Data: n.Value()})
	case dom.KindInput:
		setAttr(clone, "value", n.Value())
	case dom.KindSVG:
		fixSVG(n, clone)
	}
	return nil
}

// copyStyle captures the engine's fully computed style, not the raw inline
// style: an element with no explicit styling still participates in the
// cascade and those values must survive detachment.
func (c *Cloner) copyStyle(ctx context.Context, n dom.Node, clone *html.Node) error {
	st, err := c.Engine.Style(ctx, n, "")
	if err != nil {
		return fmt.Errorf("htmltoimage: reading computed style of <%s>: %w", n.Tag(), err)
	}
	if st.Empty() {
		return nil
	}
	setAttr(clone, "style", st.Text())
	return nil
}

// materializePseudos turns :before/:after generated content into a uniquely
// classed style rule embedded next to the clone, since pseudo-element state
// does not survive serialization.
func (c *Cloner) materializePseudos(ctx context.Context, n dom.Node, clone *html.Node) error {
	for _, pseudo := range []string{":before", ":after"} {
		st, err := c.Engine.Style(ctx, n, pseudo)
		if err != nil {
			return fmt.Errorf("htmltoimage: reading %s style of <%s>: %w", pseudo, n.Tag(), err)
		}
		content := st.Get("content")
		if content == "" || content == "none" {
			continue
		}

		class := "h2i-pseudo-" + strconv.FormatUint(classCounter.Add(1), 10)
		addClass(clone, class)

		// The content value is restated explicitly; it is easy to lose from
		// the serialized declaration block.
		rule := "." + class + pseudo + " { " + st.Text() + " content: " + content + "; }"
		styleEl := &html.Node{Type: html.ElementNode, Data: "style"}
		styleEl.AppendChild(&html.Node{Type: html.TextNode, Data: rule})
		clone.AppendChild(styleEl)
	}
	return nil
}

// fixSVG pins the namespace so the fragment renders standalone, and mirrors
// rect geometry attributes into style, which some renderers require in a
// foreign-object context.
func fixSVG(n dom.Node, clone *html.Node) {
	setAttr(clone, "xmlns", "http://www.w3.org/2000/svg")
	if n.Tag() != "rect" {
		return
	}
	for _, att := range []string{"width", "height"} {
		v := attrValue(clone, att)
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			v += "px"
		}
		appendStyle(clone, att+": "+v+";")
	}
}

func (c *Cloner) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
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

func addClass(n *html.Node, class string) {
	existing := attrValue(n, "class")
	if existing != "" {
		class = existing + " " + class
	}
	setAttr(n, "class", class)
}

func appendStyle(n *html.Node, decl string) {
	existing := strings.TrimSpace(attrValue(n, "style"))
	if existing != "" && !strings.HasSuffix(existing, ";") {
		existing += ";"
	}
	if existing != "" {
		existing += " "
	}
	setAttr(n, "style", existing+decl)
}
