package dom

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// StaticNode wraps a parsed x/net/html node as a dom.Node. It is the
// engine-less path: useful for tests and for rendering markup that carries
// all of its styling inline.
type StaticNode struct {
	n *html.Node
}

// FromHTML parses an HTML document and returns its <body> element as the
// snapshot root.
func FromHTML(r io.Reader) (*StaticNode, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parsing document: %w", err)
	}
	body := findElement(doc, "body")
	if body == nil {
		return nil, fmt.Errorf("dom: document has no body element")
	}
	return &StaticNode{n: body}, nil
}

// FromNode wraps an existing parsed node.
func FromNode(n *html.Node) *StaticNode {
	return &StaticNode{n: n}
}

// HTMLNode returns the underlying parsed node.
func (s *StaticNode) HTMLNode() *html.Node { return s.n }

func (s *StaticNode) Kind() Kind {
	if s.n.Type == html.TextNode {
		return KindText
	}
	return KindForTag(s.n.Data, s.n.Namespace)
}

func (s *StaticNode) Tag() string {
	if s.n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(s.n.Data)
}

func (s *StaticNode) Namespace() string { return s.n.Namespace }

func (s *StaticNode) Attrs() []Attr {
	attrs := make([]Attr, 0, len(s.n.Attr))
	for _, a := range s.n.Attr {
		attrs = append(attrs, Attr{Key: a.Key, Value: a.Val})
	}
	return attrs
}

func (s *StaticNode) Text() string {
	if s.n.Type == html.TextNode {
		return s.n.Data
	}
	return ""
}

// Value returns the form-control value. A static tree has no live state, so
// this is the value attribute for inputs and the text content for textareas.
func (s *StaticNode) Value() string {
	switch s.Kind() {
	case KindInput:
		return s.attr("value")
	case KindTextArea:
		var b strings.Builder
		for c := s.n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
		return b.String()
	}
	return ""
}

func (s *StaticNode) Children() []Node {
	var children []Node
	for c := s.n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode || c.Type == html.TextNode {
			children = append(children, &StaticNode{n: c})
		}
	}
	return children
}

func (s *StaticNode) attr(key string) string {
	for _, a := range s.n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
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

// StaticEngine serves style queries from a parsed tree: the computed style of
// a node is its inline style attribute, pseudo-elements have none, and the
// reachable stylesheets are the document's <style> elements. It performs no
// cascade of its own.
type StaticEngine struct {
	// Root is the document root used for stylesheet enumeration. Optional;
	// without it StyleSheets returns nothing.
	Root *StaticNode
}

func (e *StaticEngine) Style(_ context.Context, n Node, pseudo string) (Style, error) {
	if pseudo != "" {
		return Style{}, nil
	}
	sn, ok := n.(*StaticNode)
	if !ok {
		return Style{}, fmt.Errorf("dom: static engine got foreign node %T", n)
	}
	text := sn.attr("style")
	if text == "" {
		return Style{}, nil
	}
	st := Style{CSSText: text}
	decls, err := parser.ParseDeclarations(text)
	if err != nil {
		// Keep the raw text; property lookup degrades gracefully.
		return st, nil
	}
	for _, d := range decls {
		st.Declarations = append(st.Declarations, Declaration{
			Property:  d.Property,
			Value:     d.Value,
			Important: d.Important,
		})
	}
	return st, nil
}

func (e *StaticEngine) Metrics(ctx context.Context, n Node) (Metrics, error) {
	sn, ok := n.(*StaticNode)
	if !ok {
		return Metrics{}, fmt.Errorf("dom: static engine got foreign node %T", n)
	}
	st, _ := e.Style(ctx, n, "")
	m := Metrics{
		Width:  pixelValue(st.Get("width"), sn.attr("width")),
		Height: pixelValue(st.Get("height"), sn.attr("height")),
	}
	return m, nil
}

func (e *StaticEngine) StyleSheets(_ context.Context) ([]StyleSheet, error) {
	if e.Root == nil {
		return nil, nil
	}
	var sheets []StyleSheet
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "style" {
			var b strings.Builder
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			sheets = append(sheets, StyleSheet{CSS: b.String()})
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	root := e.Root.n
	for root.Parent != nil {
		root = root.Parent
	}
	walk(root)
	return sheets, nil
}

func (e *StaticEngine) CanvasData(_ context.Context, n Node) (string, error) {
	return "", fmt.Errorf("dom: static engine cannot capture canvas pixels")
}

// pixelValue parses the first usable CSS pixel length from the candidates.
func pixelValue(candidates ...string) float64 {
	for _, c := range candidates {
		c = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(c), "px"))
		if c == "" {
			continue
		}
		if v, err := strconv.ParseFloat(c, 64); err == nil && v > 0 {
			return v
		}
	}
	return 0
}
