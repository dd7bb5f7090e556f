package htmltoimage_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	htmltoimage "github.com/pureZjr/html-to-image"
	"github.com/pureZjr/html-to-image/dom"
)

// fixturePNG returns a small valid PNG and its base64 encoding.
func fixturePNG(t *testing.T) ([]byte, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture PNG: %v", err)
	}
	return buf.Bytes(), base64.StdEncoding.EncodeToString(buf.Bytes())
}

// countingLoader wraps another loader and counts Load calls.
type countingLoader struct {
	inner htmltoimage.Loader
	loads atomic.Int64
}

func (l *countingLoader) Load(ctx context.Context, uri string) ([]byte, error) {
	l.loads.Add(1)
	return l.inner.Load(ctx, uri)
}

func (l *countingLoader) Sanitize(ctx context.Context, uri string) (string, error) {
	return l.inner.Sanitize(ctx, uri)
}

func parseNode(t *testing.T, markup string) *dom.StaticNode {
	t.Helper()
	n, err := dom.FromHTML(strings.NewReader(markup))
	if err != nil {
		t.Fatalf("FromHTML: %v", err)
	}
	return n
}

func TestToSVGEmbedsExternalImage(t *testing.T) {
	raw, b64 := fixturePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(raw)
	}))
	defer srv.Close()

	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.NewHTTPLoader(srv.Client())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body style="width: 50px; height: 30px;"><img src="`+srv.URL+`/a.png"></body>`)
	uri, err := conv.ToSVG(context.Background(), node)
	if err != nil {
		t.Fatalf("ToSVG: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/svg+xml;charset=utf-8,") {
		t.Errorf("missing vector prefix: %.60s", uri)
	}
	if !strings.Contains(uri, "data:image/png;base64,"+b64) {
		t.Error("external image not embedded in snapshot")
	}
	if strings.Contains(uri, srv.URL) {
		t.Error("snapshot still references the network")
	}
}

func TestToSVGFullyInlineInputZeroFetches(t *testing.T) {
	loader := &countingLoader{inner: htmltoimage.NewHTTPLoader(nil)}
	conv, err := htmltoimage.New(htmltoimage.WithLoader(loader))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body style="width: 20px; height: 20px;"><div style="color: red;">x</div><img src="data:image/png;base64,AAAA"></body>`)
	if _, err := conv.ToSVG(context.Background(), node); err != nil {
		t.Fatalf("ToSVG: %v", err)
	}
	if n := loader.loads.Load(); n != 0 {
		t.Errorf("fully inline input caused %d fetches", n)
	}
}

func TestToSVGPlaceholderRecoversBrokenImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, b64 := fixturePNG(t)
	placeholder := "data:image/png;base64," + b64

	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.NewHTTPLoader(srv.Client())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body style="width: 20px; height: 20px;"><img src="`+srv.URL+`/broken.png"></body>`)

	// Without a placeholder the broken image fails the render.
	if _, err := conv.ToSVG(context.Background(), node); err == nil {
		t.Error("expected error for broken image without placeholder")
	}

	// With one, it degrades to the placeholder payload.
	uri, err := conv.ToSVG(context.Background(), node, htmltoimage.WithPlaceholder(placeholder))
	if err != nil {
		t.Fatalf("ToSVG with placeholder: %v", err)
	}
	if !strings.Contains(uri, b64) {
		t.Error("placeholder payload not embedded")
	}
}

// basedEngine is a static engine that also reports a document base URL, the
// way a live-page engine does.
type basedEngine struct {
	dom.StaticEngine
	base string
}

func (e *basedEngine) BaseURL(context.Context) (string, error) {
	return e.base, nil
}

func TestToSVGResolvesRelativeSrcAgainstEngineBase(t *testing.T) {
	raw, b64 := fixturePNG(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assets/logo.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(raw)
	}))
	defer srv.Close()

	node := parseNode(t, `<body style="width: 20px; height: 20px;"><img src="assets/logo.png"></body>`)
	engine := &basedEngine{
		StaticEngine: dom.StaticEngine{Root: node},
		base:         srv.URL + "/",
	}
	conv, err := htmltoimage.New(
		htmltoimage.WithEngine(engine),
		htmltoimage.WithLoader(htmltoimage.NewHTTPLoader(srv.Client())),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	uri, err := conv.ToSVG(context.Background(), node)
	if err != nil {
		t.Fatalf("ToSVG: %v", err)
	}
	if !strings.Contains(uri, "data:image/png;base64,"+b64) {
		t.Error("relative image not resolved against the document base and embedded")
	}
}

func TestMalformedPlaceholderTreatedAsUnconfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.NewHTTPLoader(srv.Client())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body style="width: 20px; height: 20px;"><img src="`+srv.URL+`/broken.png"></body>`)
	_, err = conv.ToSVG(context.Background(), node,
		htmltoimage.WithPlaceholder("http://example.com/not-a-data-uri.png"))
	if err == nil {
		t.Error("placeholder without a payload must not mask the broken image")
	}
}

func TestToSVGFilterExcludesSubtree(t *testing.T) {
	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	filter, err := dom.Selector(".secret")
	if err != nil {
		t.Fatalf("Selector: %v", err)
	}
	node := parseNode(t, `<body style="width: 20px; height: 20px;"><div class="secret">hidden</div><div>visible</div></body>`)
	uri, err := conv.ToSVG(context.Background(), node, htmltoimage.WithFilter(filter))
	if err != nil {
		t.Fatalf("ToSVG: %v", err)
	}
	if strings.Contains(uri, "hidden") {
		t.Error("filtered subtree leaked into snapshot")
	}
	if !strings.Contains(uri, "visible") {
		t.Error("kept subtree missing from snapshot")
	}
}

func TestToSVGEmbedsWebFonts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("fontbytes"))
	}))
	defer srv.Close()

	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.NewHTTPLoader(srv.Client())))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	markup := `<html><head><style>@font-face { font-family: "Body"; src: url(` + srv.URL + `/body.woff); }</style></head>` +
		`<body style="width: 20px; height: 20px;">x</body></html>`
	node := parseNode(t, markup)
	uri, err := conv.ToSVG(context.Background(), node)
	if err != nil {
		t.Fatalf("ToSVG: %v", err)
	}
	want := "data:application/font-woff;base64," + base64.StdEncoding.EncodeToString([]byte("fontbytes"))
	if !strings.Contains(uri, want) {
		t.Error("web font not embedded in snapshot")
	}
}

func TestToPNGProducesDecodableImage(t *testing.T) {
	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body>hi</body>`)
	uri, err := conv.ToPNG(context.Background(), node,
		htmltoimage.WithWidth(40), htmltoimage.WithHeight(25), htmltoimage.WithBackground("white"))
	if err != nil {
		t.Fatalf("ToPNG: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/png;base64,") {
		t.Fatalf("missing PNG prefix: %.40s", uri)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	if err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("payload is not a PNG: %v", err)
	}
	if decoded.Bounds().Dx() != 40 || decoded.Bounds().Dy() != 25 {
		t.Errorf("decoded size = %v, want 40x25", decoded.Bounds())
	}
}

func TestToJPEGProducesDataURI(t *testing.T) {
	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body>hi</body>`)
	uri, err := conv.ToJPEG(context.Background(), node,
		htmltoimage.WithWidth(10), htmltoimage.WithHeight(10), htmltoimage.WithQuality(0.8))
	if err != nil {
		t.Fatalf("ToJPEG: %v", err)
	}
	if !strings.HasPrefix(uri, "data:image/jpeg;base64,") {
		t.Errorf("missing JPEG prefix: %.40s", uri)
	}
}

func TestToPixelsBackgroundFill(t *testing.T) {
	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body></body>`)
	pix, w, h, err := conv.ToPixels(context.Background(), node,
		htmltoimage.WithWidth(6), htmltoimage.WithHeight(4), htmltoimage.WithBackground("red"))
	if err != nil {
		t.Fatalf("ToPixels: %v", err)
	}
	if w != 6 || h != 4 {
		t.Fatalf("size = %dx%d", w, h)
	}
	if len(pix) != 6*4*4 {
		t.Fatalf("buffer length = %d", len(pix))
	}
	if got := (color.RGBA{pix[0], pix[1], pix[2], pix[3]}); got != (color.RGBA{0xFF, 0, 0, 0xFF}) {
		t.Errorf("top-left pixel = %v, want red", got)
	}
}

func TestEndToEndNoExternalResourcesZeroFetches(t *testing.T) {
	loader := &countingLoader{inner: htmltoimage.NewHTTPLoader(nil)}
	conv, err := htmltoimage.New(htmltoimage.WithLoader(loader))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body><div style="color: red;">x</div></body>`)
	pix, _, _, err := conv.ToPixels(context.Background(), node,
		htmltoimage.WithWidth(12), htmltoimage.WithHeight(12), htmltoimage.WithBackground("red"))
	if err != nil {
		t.Fatalf("ToPixels: %v", err)
	}
	if pix[0] != 0xFF {
		t.Errorf("top-left red channel = %d, want 255", pix[0])
	}
	if n := loader.loads.Load(); n != 0 {
		t.Errorf("render without external resources caused %d fetches", n)
	}
}

func TestToBlobReturnsRawPNG(t *testing.T) {
	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body>x</body>`)
	blob, err := conv.ToBlob(context.Background(), node,
		htmltoimage.WithWidth(8), htmltoimage.WithHeight(8))
	if err != nil {
		t.Fatalf("ToBlob: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(blob)); err != nil {
		t.Errorf("blob is not a PNG: %v", err)
	}
}

func TestRenderFailsWithoutMeasurableSize(t *testing.T) {
	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body>unsized</body>`)
	if _, err := conv.ToSVG(context.Background(), node); err == nil {
		t.Error("expected size error for unmeasurable snapshot")
	}
}

func TestStyleOverridesAppliedToRoot(t *testing.T) {
	conv, err := htmltoimage.New(htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer conv.Close()

	node := parseNode(t, `<body style="width: 10px; height: 10px;">x</body>`)
	uri, err := conv.ToSVG(context.Background(), node,
		htmltoimage.WithStyle(map[string]string{"opacity": "0.5"}))
	if err != nil {
		t.Fatalf("ToSVG: %v", err)
	}
	if !strings.Contains(uri, "opacity: 0.5") {
		t.Error("style override not applied to clone root")
	}
}
