package inline

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestReadURLsDistinctInOrder(t *testing.T) {
	text := `background: url("a.png") url('b.png') url(a.png) url(data:image/png;base64,AAA);`
	got := ReadURLs(text)
	want := []string{"a.png", "b.png"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMimeForURL(t *testing.T) {
	cases := map[string]string{
		"http://example.com/font.woff":       "application/font-woff",
		"http://example.com/font.woff2":      "application/font-woff",
		"pic.PNG":                            "image/png",
		"pic.jpg?v=3":                        "image/jpeg",
		"pic.svg#icon":                       "image/svg+xml",
		"http://example.com/no-extension":    "",
		"http://example.com/odd.unknownext":  "",
		"http://example.com/dir.d/extension": "",
	}
	for u, want := range cases {
		if got := MimeForURL(u); got != want {
			t.Errorf("MimeForURL(%q) = %q, want %q", u, got, want)
		}
	}
}

func TestInlineAllNoURLSyntaxZeroFetches(t *testing.T) {
	fetches := 0
	i := &Inliner{Fetch: func(_ context.Context, _ string) (string, error) {
		fetches++
		return "XXXX", nil
	}}
	text := "color: red; font-weight: bold;"
	got, err := i.InlineAll(context.Background(), text, "")
	if err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	if got != text {
		t.Errorf("text changed: %q", got)
	}
	if fetches != 0 {
		t.Errorf("expected zero fetches, got %d", fetches)
	}
}

func TestInlineAllEmbeddedReferenceUntouched(t *testing.T) {
	i := &Inliner{Fetch: func(_ context.Context, _ string) (string, error) {
		t.Fatal("fetch called for embedded reference")
		return "", nil
	}}
	text := `background: url(data:image/png;base64,AAAA);`
	got, err := i.InlineAll(context.Background(), text, "")
	if err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	if got != text {
		t.Errorf("embedded reference rewritten: %q", got)
	}
}

func TestInlineAllReplacesReference(t *testing.T) {
	i := &Inliner{Fetch: func(_ context.Context, u string) (string, error) {
		if u != "a.png" {
			return "", fmt.Errorf("unexpected fetch %q", u)
		}
		return "ZZZZ", nil
	}}
	got, err := i.InlineAll(context.Background(), `background: url("a.png");`, "")
	if err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	want := `background: url("data:image/png;base64,ZZZZ");`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestInlineAllResolvesAgainstBase(t *testing.T) {
	var fetched string
	i := &Inliner{Fetch: func(_ context.Context, u string) (string, error) {
		fetched = u
		return "ZZZZ", nil
	}}
	_, err := i.InlineAll(context.Background(), `src: url(fonts/a.woff);`, "http://example.com/css/site.css")
	if err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	if fetched != "http://example.com/css/fonts/a.woff" {
		t.Errorf("resolved URL = %q", fetched)
	}
}

func TestInlineAllKeepsQuoteStyle(t *testing.T) {
	i := &Inliner{Fetch: func(_ context.Context, _ string) (string, error) {
		return "QQ", nil
	}}
	got, err := i.InlineAll(context.Background(), `background: url('a.gif');`, "")
	if err != nil {
		t.Fatalf("InlineAll: %v", err)
	}
	if !strings.Contains(got, `url('data:image/gif;base64,QQ')`) {
		t.Errorf("quote style lost: %q", got)
	}
}

func TestResolveURLAbsoluteRefPassesThrough(t *testing.T) {
	got, err := ResolveURL("http://example.com/css/site.css", "https://cdn.example.com/a.png")
	if err != nil {
		t.Fatalf("ResolveURL: %v", err)
	}
	if got != "https://cdn.example.com/a.png" {
		t.Errorf("got %q", got)
	}
}
