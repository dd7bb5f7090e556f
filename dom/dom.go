// Package dom defines the boundary between the snapshot pipeline and the
// rendering engine that hosts the live visual tree. The pipeline never
// computes style or layout itself; it queries an Engine for what the host
// engine already resolved.
package dom

import (
	"context"
	"strings"
)

// Kind is the closed set of node variants the cloner dispatches on.
type Kind int

const (
	KindText Kind = iota
	KindElement
	KindImage
	KindCanvas
	KindInput
	KindTextArea
	KindSVG
)

// KindForTag maps a tag name and namespace to a Kind.
func KindForTag(tag, namespace string) Kind {
	if namespace == "svg" {
		return KindSVG
	}
	switch strings.ToLower(tag) {
	case "img":
		return KindImage
	case "canvas":
		return KindCanvas
	case "input":
		return KindInput
	case "textarea":
		return KindTextArea
	default:
		return KindElement
	}
}

// Attr is a single element attribute.
type Attr struct {
	Key   string
	Value string
}

// Node is a handle on a node of the live visual tree. Implementations wrap
// either a parsed static tree (StaticNode) or a browser-side element.
type Node interface {
	// Kind returns the node variant used for clone post-processing dispatch.
	Kind() Kind

	// Tag returns the lower-case tag name. Empty for text nodes.
	Tag() string

	// Namespace returns the element namespace ("" for HTML, "svg" for SVG).
	Namespace() string

	// Attrs returns the element attributes in document order.
	Attrs() []Attr

	// Text returns the character data of a text node.
	Text() string

	// Value returns the live value of a form control, which may differ from
	// the value attribute present in the markup.
	Value() string

	// Children returns the child nodes in original order.
	Children() []Node
}

// Filter decides whether a node and its entire subtree are included in a
// snapshot. It is never evaluated on the snapshot root.
type Filter func(Node) bool

// Declaration is a single CSS property with its cascade-resolved value.
type Declaration struct {
	Property  string
	Value     string
	Important bool
}

// Style is the fully computed style of a node or pseudo-element, as reported
// by the engine. When CSSText is non-empty it is the authoritative serialized
// declaration block; otherwise Declarations is.
type Style struct {
	CSSText      string
	Declarations []Declaration
}

// Empty reports whether the style carries no declarations at all.
func (s Style) Empty() bool {
	return s.CSSText == "" && len(s.Declarations) == 0
}

// Text serializes the style as a declaration block.
func (s Style) Text() string {
	if s.CSSText != "" {
		return s.CSSText
	}
	var b strings.Builder
	for _, d := range s.Declarations {
		b.WriteString(d.Property)
		b.WriteString(": ")
		b.WriteString(d.Value)
		if d.Important {
			b.WriteString(" !important")
		}
		b.WriteString("; ")
	}
	return strings.TrimSpace(b.String())
}

// Get returns the value of the named property, or "" when absent. It only
// consults Declarations; engines that report CSSText should also populate
// Declarations for property lookup.
func (s Style) Get(property string) string {
	for _, d := range s.Declarations {
		if strings.EqualFold(d.Property, property) {
			return d.Value
		}
	}
	return ""
}

// Metrics is the border-inclusive scroll geometry of a node in CSS pixels.
type Metrics struct {
	Width  float64
	Height float64
}

// StyleSheet is one stylesheet reachable from the document. Err is non-nil
// when the engine could not read the sheet's rules (cross-origin policy);
// such sheets are skipped by the font-face resolver, not fatal.
type StyleSheet struct {
	// BaseURL is the sheet's own URL, against which its url() references
	// resolve. Empty for inline <style> sheets.
	BaseURL string
	CSS     string
	Err     error
}

// Engine is the rendering-engine collaborator. It answers style and geometry
// queries for live nodes; the pipeline captures what it reports and never
// reimplements the cascade.
type Engine interface {
	// Style returns the fully computed style for the node, or for one of its
	// pseudo-elements when pseudo is ":before" or ":after".
	Style(ctx context.Context, n Node, pseudo string) (Style, error)

	// Metrics returns the node's border-inclusive scroll dimensions.
	Metrics(ctx context.Context, n Node) (Metrics, error)

	// StyleSheets enumerates all stylesheets reachable from the document.
	StyleSheets(ctx context.Context) ([]StyleSheet, error)

	// CanvasData returns the current pixel contents of a canvas node encoded
	// as a PNG data URI.
	CanvasData(ctx context.Context, n Node) (string, error)
}
