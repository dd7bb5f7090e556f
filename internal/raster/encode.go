// Package raster turns assembled vector documents into pixel buffers and
// encoded raster outputs.
package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
)

// PNGBytes encodes the image as PNG.
func PNGBytes(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("htmltoimage: encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// PNGDataURI encodes the image as a PNG data URI.
func PNGDataURI(img image.Image) (string, error) {
	data, err := PNGBytes(img)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// JPEGDataURI encodes the image as a JPEG data URI at the given quality in
// [0,1]. JPEG carries no alpha, so the image is flattened onto white first.
func JPEGDataURI(img image.Image, quality float64) (string, error) {
	if quality <= 0 || quality > 1 {
		quality = 1
	}
	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: int(quality * 100)}
	if err := jpeg.Encode(&buf, flattenAlpha(img), opts); err != nil {
		return "", fmt.Errorf("htmltoimage: encoding JPEG: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Pixels returns the raw RGBA byte buffer of the image.
func Pixels(img *image.RGBA) []byte {
	return img.Pix
}

// flattenAlpha composites the image onto a white background.
func flattenAlpha(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, src, b.Min, draw.Over)
	return dst
}
