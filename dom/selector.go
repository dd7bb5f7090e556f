package dom

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// htmlBacked is implemented by nodes that expose their underlying parsed
// representation, enabling CSS-selector matching.
type htmlBacked interface {
	HTMLNode() *html.Node
}

// Selector compiles a CSS selector into a Filter that excludes matching
// nodes (and therefore their subtrees) from a snapshot. Nodes that do not
// expose an underlying parsed node are always kept.
func Selector(css string) (Filter, error) {
	sel, err := cascadia.Parse(css)
	if err != nil {
		return nil, fmt.Errorf("dom: compiling selector %q: %w", css, err)
	}
	return func(n Node) bool {
		hb, ok := n.(htmlBacked)
		if !ok {
			return true
		}
		return !sel.Match(hb.HTMLNode())
	}, nil
}

// Matcher compiles a CSS selector into a predicate that reports whether a
// node matches it. Nodes without an underlying parsed node never match.
func Matcher(css string) (Filter, error) {
	sel, err := cascadia.Parse(css)
	if err != nil {
		return nil, fmt.Errorf("dom: compiling selector %q: %w", css, err)
	}
	return func(n Node) bool {
		hb, ok := n.(htmlBacked)
		if !ok {
			return false
		}
		return sel.Match(hb.HTMLNode())
	}, nil
}
