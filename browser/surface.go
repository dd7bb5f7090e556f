package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/go-rod/rod/lib/proto"
)

// Surface draws vector snapshots by loading them into a blank tab as an
// image and screenshotting the viewport. The image's decode promise is the
// readiness signal: the screenshot is taken only after the browser reports
// the image fully decoded, never after a guessed settle delay.
type Surface struct {
	Browser *Browser
}

// Draw renders the vector data URI at the given size, filling background
// first when non-nil.
func (s *Surface) Draw(ctx context.Context, svgURI string, width, height int, background color.Color) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("browser: cannot draw onto %dx%d surface", width, height)
	}

	page, err := s.Browser.blankPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("browser: sizing viewport: %w", err)
	}

	_, err = page.Eval(`async (src, bg) => {
		document.documentElement.style.margin = "0";
		document.body.style.margin = "0";
		if (bg) {
			document.body.style.background = bg;
		}
		const img = new Image();
		img.crossOrigin = "anonymous";
		img.style.display = "block";
		img.src = src;
		await img.decode();
		document.body.appendChild(img);
	}`, svgURI, cssColor(background))
	if err != nil {
		return nil, fmt.Errorf("browser: loading snapshot image: %w", err)
	}

	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}

	decoded, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("browser: decoding screenshot: %w", err)
	}
	return toRGBA(decoded), nil
}

func cssColor(c color.Color) string {
	if c == nil {
		return ""
	}
	r, g, b, a := c.RGBA()
	return fmt.Sprintf("rgba(%d, %d, %d, %g)", r>>8, g>>8, b>>8, float64(a>>8)/255)
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
	return dst
}
