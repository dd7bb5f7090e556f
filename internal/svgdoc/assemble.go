// Package svgdoc wraps a serialized snapshot in a self-describing vector
// container: an SVG foreign object sized to the original subtree, delivered
// as a single data URI.
package svgdoc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const xhtmlNamespace = "http://www.w3.org/1999/xhtml"

// escaper handles the two characters unsafe inside a data URI's foreign
// object payload.
var escaper = strings.NewReplacer("#", "%23", "\n", "%0A")

// Assemble serializes the fully inlined clone and wraps it in an SVG sized
// exactly to width x height, returning a vector-image data URI.
func Assemble(clone *html.Node, width, height float64) (string, error) {
	setAttr(clone, "xmlns", xhtmlNamespace)

	var buf bytes.Buffer
	if err := html.Render(&buf, clone); err != nil {
		return "", fmt.Errorf("htmltoimage: serializing snapshot: %w", err)
	}
	xhtml := escaper.Replace(buf.String())

	var b strings.Builder
	b.WriteString("data:image/svg+xml;charset=utf-8,")
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="`)
	b.WriteString(formatDimension(width))
	b.WriteString(`" height="`)
	b.WriteString(formatDimension(height))
	b.WriteString(`"><foreignObject x="0" y="0" width="100%" height="100%">`)
	b.WriteString(xhtml)
	b.WriteString(`</foreignObject></svg>`)
	return b.String(), nil
}

func formatDimension(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
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
