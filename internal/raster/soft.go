package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"

	"github.com/aymerick/douceur/parser"
	"github.com/golang/freetype/truetype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
	"golang.org/x/net/html"
)

const vectorPrefix = "data:image/svg+xml;charset=utf-8,"

// unescaper reverses the foreign-object payload escaping.
var unescaper = strings.NewReplacer("%23", "#", "%0A", "\n")

// SoftSurface is a limited pure-Go drawing surface: it paints solid
// backgrounds, embedded images, and wrapped text from the snapshot, without
// running a layout engine. It keeps the pipeline usable and testable when no
// browser is available; use browser.Surface for full fidelity.
type SoftSurface struct {
	Log *slog.Logger
}

// Draw renders the vector data URI onto a fresh pixel buffer of the given
// size, filling background first when non-nil.
func (s *SoftSurface) Draw(ctx context.Context, svgURI string, width, height int, background color.Color) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("htmltoimage: cannot draw onto %dx%d surface", width, height)
	}
	xhtml, err := decodeVector(svgURI)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	if background != nil {
		draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	}

	doc, err := html.Parse(strings.NewReader(xhtml))
	if err != nil {
		return nil, fmt.Errorf("htmltoimage: re-parsing snapshot markup: %w", err)
	}
	root := firstElement(findTag(doc, "body"))
	if root == nil {
		return img, nil
	}

	// The root box is assumed to fill the surface; its background paints
	// over the configured fill.
	if bg := backgroundOf(styleOf(root)); bg != nil {
		draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	}

	p, err := newPainter(img)
	if err != nil {
		return nil, err
	}
	p.paint(ctx, root, inherited{color: color.RGBA{A: 0xFF}, size: 16})
	return img, nil
}

// decodeVector extracts the foreign-object payload from a vector data URI.
func decodeVector(uri string) (string, error) {
	if !strings.HasPrefix(uri, vectorPrefix) {
		return "", fmt.Errorf("htmltoimage: not a vector image data URI")
	}
	svg := unescaper.Replace(strings.TrimPrefix(uri, vectorPrefix))
	open := strings.Index(svg, "<foreignObject")
	if open < 0 {
		return "", fmt.Errorf("htmltoimage: vector document has no foreign object")
	}
	start := strings.IndexByte(svg[open:], '>')
	end := strings.LastIndex(svg, "</foreignObject>")
	if start < 0 || end < 0 || open+start+1 > end {
		return "", fmt.Errorf("htmltoimage: malformed foreign object wrapper")
	}
	return svg[open+start+1 : end], nil
}

// inherited is the style state that flows down the paint walk.
type inherited struct {
	color color.Color
	size  float64
}

type painter struct {
	img     *image.RGBA
	ft      *truetype.Font
	margin  int
	cursorY int
}

func newPainter(img *image.RGBA) (*painter, error) {
	ft, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("htmltoimage: parsing builtin font: %w", err)
	}
	return &painter{img: img, ft: ft, margin: 4, cursorY: 4}, nil
}

func (p *painter) paint(ctx context.Context, n *html.Node, in inherited) {
	if ctx.Err() != nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			p.drawText(text, in)
		}
		return
	case html.ElementNode:
	default:
		return
	}

	if n.Data == "style" {
		return
	}
	if n.Data == "img" {
		p.drawImage(n)
		return
	}

	st := styleOf(n)
	if c := st["color"]; c != "" {
		if parsed, err := ParseColor(c); err == nil {
			in.color = parsed
		}
	}
	if sz := st["font-size"]; sz != "" {
		if v := pxValue(sz); v > 0 {
			in.size = v
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.paint(ctx, c, in)
	}
}

// drawText draws word-wrapped text at the cursor, advancing it.
func (p *painter) drawText(text string, in inherited) {
	face := truetype.NewFace(p.ft, &truetype.Options{Size: in.size, DPI: 96, Hinting: font.HintingFull})
	defer face.Close()

	drawer := &font.Drawer{
		Dst:  p.img,
		Src:  image.NewUniform(in.color),
		Face: face,
	}

	lineHeight := face.Metrics().Height.Ceil() + 2
	maxWidth := fixed.I(p.img.Bounds().Dx() - 2*p.margin)

	var line string
	flush := func() {
		if line == "" {
			return
		}
		p.cursorY += lineHeight
		drawer.Dot = fixed.P(p.margin, p.cursorY)
		drawer.DrawString(line)
		line = ""
	}

	for _, word := range strings.Fields(text) {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if drawer.MeasureString(candidate) > maxWidth && line != "" {
			flush()
			line = word
			continue
		}
		line = candidate
	}
	flush()
}

// drawImage decodes an embedded data URI image and draws it at the cursor,
// scaled to its declared attribute size when present.
func (p *painter) drawImage(n *html.Node) {
	src := attrOf(n, "src")
	idx := strings.Index(src, ";base64,")
	if !strings.HasPrefix(src, "data:") || idx < 0 {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(src[idx+len(";base64,"):])
	if err != nil {
		return
	}
	decoded, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return
	}

	w := decoded.Bounds().Dx()
	h := decoded.Bounds().Dy()
	if v := int(pxValue(attrOf(n, "width"))); v > 0 {
		h = h * v / w
		w = v
	}
	if v := int(pxValue(attrOf(n, "height"))); v > 0 {
		h = v
	}

	dst := image.Rect(p.margin, p.cursorY, p.margin+w, p.cursorY+h)
	xdraw.ApproxBiLinear.Scale(p.img, dst, decoded, decoded.Bounds(), draw.Over, nil)
	p.cursorY += h + 2
}

// styleOf parses the element's style attribute into a property map.
func styleOf(n *html.Node) map[string]string {
	style := attrOf(n, "style")
	if style == "" {
		return nil
	}
	decls, err := parser.ParseDeclarations(style)
	if err != nil {
		return nil
	}
	m := make(map[string]string, len(decls))
	for _, d := range decls {
		m[strings.ToLower(d.Property)] = d.Value
	}
	return m
}

// backgroundOf extracts a solid background color from a style map, looking
// at background-color and the first token of the background shorthand.
func backgroundOf(st map[string]string) color.Color {
	if st == nil {
		return nil
	}
	if v := st["background-color"]; v != "" {
		if c, err := ParseColor(v); err == nil {
			return c
		}
	}
	if v := st["background"]; v != "" {
		for _, tok := range strings.Fields(v) {
			if c, err := ParseColor(tok); err == nil {
				return c
			}
		}
	}
	return nil
}

func pxValue(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if s == "" {
		return 0
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return 0
	}
	return v
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findTag(n *html.Node, tag string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func firstElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}
