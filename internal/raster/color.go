package raster

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// namedColors covers the CSS basic color keywords plus a few common extras.
// The soft surface does not aim for the full extended keyword set.
var namedColors = map[string]color.RGBA{
	"black":       {0x00, 0x00, 0x00, 0xFF},
	"silver":      {0xC0, 0xC0, 0xC0, 0xFF},
	"gray":        {0x80, 0x80, 0x80, 0xFF},
	"grey":        {0x80, 0x80, 0x80, 0xFF},
	"white":       {0xFF, 0xFF, 0xFF, 0xFF},
	"maroon":      {0x80, 0x00, 0x00, 0xFF},
	"red":         {0xFF, 0x00, 0x00, 0xFF},
	"purple":      {0x80, 0x00, 0x80, 0xFF},
	"fuchsia":     {0xFF, 0x00, 0xFF, 0xFF},
	"green":       {0x00, 0x80, 0x00, 0xFF},
	"lime":        {0x00, 0xFF, 0x00, 0xFF},
	"olive":       {0x80, 0x80, 0x00, 0xFF},
	"yellow":      {0xFF, 0xFF, 0x00, 0xFF},
	"navy":        {0x00, 0x00, 0x80, 0xFF},
	"blue":        {0x00, 0x00, 0xFF, 0xFF},
	"teal":        {0x00, 0x80, 0x80, 0xFF},
	"aqua":        {0x00, 0xFF, 0xFF, 0xFF},
	"orange":      {0xFF, 0xA5, 0x00, 0xFF},
	"steelblue":   {0x46, 0x82, 0xB4, 0xFF},
	"transparent": {0x00, 0x00, 0x00, 0x00},
}

// ParseColor parses a CSS color value: named keywords, #rgb/#rrggbb hex,
// and rgb()/rgba() functional notation.
func ParseColor(s string) (color.Color, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("htmltoimage: empty color")
	}
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHexColor(s[1:])
	}
	if strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba(") {
		return parseRGBColor(s)
	}
	return nil, fmt.Errorf("htmltoimage: unsupported color %q", s)
}

func parseHexColor(hex string) (color.Color, error) {
	switch len(hex) {
	case 3:
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	case 6:
	default:
		return nil, fmt.Errorf("htmltoimage: bad hex color #%s", hex)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("htmltoimage: bad hex color #%s: %w", hex, err)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xFF}, nil
}

func parseRGBColor(s string) (color.Color, error) {
	open := strings.IndexByte(s, '(')
	close := strings.LastIndexByte(s, ')')
	if open < 0 || close < open {
		return nil, fmt.Errorf("htmltoimage: bad rgb color %q", s)
	}
	parts := strings.Split(s[open+1:close], ",")
	if len(parts) < 3 {
		return nil, fmt.Errorf("htmltoimage: bad rgb color %q", s)
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("htmltoimage: bad rgb channel in %q", s)
		}
		ch[i] = uint8(v)
	}
	a := uint8(0xFF)
	if len(parts) >= 4 {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64)
		if err != nil || f < 0 || f > 1 {
			return nil, fmt.Errorf("htmltoimage: bad alpha in %q", s)
		}
		a = uint8(f * 255)
	}
	return color.RGBA{ch[0], ch[1], ch[2], a}, nil
}
