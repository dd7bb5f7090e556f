// Command html2img captures an HTML document (or one element of it) as a
// self-contained image.
//
// Usage:
//
//	html2img png -i page.html -o out.png
//	html2img svg -i page.html                 # stdout, vector data URI
//	cat page.html | html2img jpeg > out.txt   # stdin
//	html2img png -url https://example.com -browser -o out.png
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	htmltoimage "github.com/pureZjr/html-to-image"
	"github.com/pureZjr/html-to-image/browser"
	"github.com/pureZjr/html-to-image/dom"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "html2img: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		return fmt.Errorf("usage: html2img <command> [flags]\n\nCommands:\n  svg   Capture as vector data URI\n  png   Capture as PNG\n  jpeg  Capture as JPEG data URI")
	}

	command := os.Args[1]
	switch command {
	case "svg", "png", "jpeg":
		return capture(command, os.Args[2:])
	default:
		return fmt.Errorf("unknown command %q (expected svg, png or jpeg)", command)
	}
}

func capture(format string, args []string) (err error) {
	fs := flag.NewFlagSet(format, flag.ExitOnError)
	input := fs.String("i", "", "input HTML file (- or omit for stdin)")
	pageURL := fs.String("url", "", "capture a live page instead of a file (requires -browser)")
	output := fs.String("o", "", "output file (omit for stdout)")
	selector := fs.String("select", "", "CSS selector of the subtree to capture (default: whole body)")
	useBrowser := fs.Bool("browser", false, "render through a headless browser for full fidelity")
	width := fs.Int("width", 0, "override snapshot width in pixels")
	height := fs.Int("height", 0, "override snapshot height in pixels")
	background := fs.String("bg", "", "background CSS color")
	quality := fs.Float64("quality", 1.0, "JPEG quality in [0,1]")
	denyNet := fs.Bool("deny-net", false, "forbid fetching external resources")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pageURL != "" && !*useBrowser {
		return fmt.Errorf("-url requires -browser")
	}

	var convOpts []htmltoimage.Option
	if *denyNet {
		convOpts = append(convOpts, htmltoimage.WithLoader(htmltoimage.DenyLoader{}))
	}

	ctx := context.Background()
	var node dom.Node

	if *useBrowser {
		b, err := browser.Open(browser.Config{})
		if err != nil {
			return err
		}
		defer b.Close()

		var page *browser.Page
		if *pageURL != "" {
			page, err = b.NewPage(ctx, *pageURL)
		} else {
			markup, rerr := readInput(*input)
			if rerr != nil {
				return rerr
			}
			page, err = b.NewPageFromHTML(ctx, string(markup))
		}
		if err != nil {
			return err
		}
		defer page.Close()

		if *selector != "" {
			node, err = page.Element(ctx, *selector)
		} else {
			node, err = page.Root(ctx)
		}
		if err != nil {
			return err
		}
		convOpts = append(convOpts,
			htmltoimage.WithEngine(page),
			htmltoimage.WithSurface(&browser.Surface{Browser: b}),
		)
	} else {
		markup, err := readInput(*input)
		if err != nil {
			return err
		}
		root, err := dom.FromHTML(strings.NewReader(string(markup)))
		if err != nil {
			return err
		}
		if *selector != "" {
			match, err := dom.Matcher(*selector)
			if err != nil {
				return err
			}
			node = firstMatch(root, match)
			if node == nil {
				return fmt.Errorf("no element matches %q", *selector)
			}
		} else {
			node = root
		}
	}

	conv, err := htmltoimage.New(convOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if e := conv.Close(); e != nil && err == nil {
			err = e
		}
	}()

	var renderOpts []htmltoimage.RenderOption
	if *width > 0 {
		renderOpts = append(renderOpts, htmltoimage.WithWidth(*width))
	}
	if *height > 0 {
		renderOpts = append(renderOpts, htmltoimage.WithHeight(*height))
	}
	if *background != "" {
		renderOpts = append(renderOpts, htmltoimage.WithBackground(*background))
	}
	if format == "jpeg" {
		renderOpts = append(renderOpts, htmltoimage.WithQuality(*quality))
	}

	switch format {
	case "svg":
		uri, err := conv.ToSVG(ctx, node, renderOpts...)
		if err != nil {
			return err
		}
		return writeOutput(*output, []byte(uri))
	case "png":
		blob, err := conv.ToBlob(ctx, node, renderOpts...)
		if err != nil {
			return err
		}
		return writeOutput(*output, blob)
	case "jpeg":
		uri, err := conv.ToJPEG(ctx, node, renderOpts...)
		if err != nil {
			return err
		}
		if strings.HasSuffix(*output, ".jpg") || strings.HasSuffix(*output, ".jpeg") {
			raw, derr := decodeDataURI(uri)
			if derr != nil {
				return derr
			}
			return writeOutput(*output, raw)
		}
		return writeOutput(*output, []byte(uri))
	}
	return nil
}

func firstMatch(n dom.Node, filter dom.Filter) dom.Node {
	if filter(n) {
		return n
	}
	for _, c := range n.Children() {
		if found := firstMatch(c, filter); found != nil {
			return found
		}
	}
	return nil
}

func decodeDataURI(uri string) ([]byte, error) {
	i := strings.IndexByte(uri, ',')
	if i < 0 {
		return nil, fmt.Errorf("malformed data URI")
	}
	return base64.StdEncoding.DecodeString(uri[i+1:])
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
