package fetch

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

type stubLoader struct {
	data    []byte
	loadErr error
	sanErr  error
	lastURI string
}

func (l *stubLoader) Load(_ context.Context, uri string) ([]byte, error) {
	l.lastURI = uri
	return l.data, l.loadErr
}

func (l *stubLoader) Sanitize(_ context.Context, uri string) (string, error) {
	if l.sanErr != nil {
		return "", l.sanErr
	}
	return uri, nil
}

func TestFetchBase64EncodesContent(t *testing.T) {
	f := &Fetcher{Loader: &stubLoader{data: []byte("payload")}}
	got, err := f.FetchBase64(context.Background(), "http://example.com/a.png")
	if err != nil {
		t.Fatalf("FetchBase64: %v", err)
	}
	want := base64.StdEncoding.EncodeToString([]byte("payload"))
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFetchBase64FailureResolvesToPlaceholder(t *testing.T) {
	f := &Fetcher{
		Loader:      &stubLoader{loadErr: errors.New("boom")},
		Placeholder: "PPPP",
	}
	got, err := f.FetchBase64(context.Background(), "http://example.com/a.png")
	if err != nil {
		t.Fatalf("resource failure must not surface as error: %v", err)
	}
	if got != "PPPP" {
		t.Errorf("got %q, want placeholder", got)
	}
}

func TestFetchBase64FailureResolvesToEmpty(t *testing.T) {
	f := &Fetcher{Loader: &stubLoader{loadErr: errors.New("boom")}}
	got, err := f.FetchBase64(context.Background(), "http://example.com/a.png")
	if err != nil {
		t.Fatalf("resource failure must not surface as error: %v", err)
	}
	if got != "" {
		t.Errorf("got %q, want empty payload", got)
	}
}

func TestFetchBase64DeniedResolvesLikeFailure(t *testing.T) {
	f := &Fetcher{
		Loader:      &stubLoader{sanErr: errors.New("denied")},
		Placeholder: "PPPP",
	}
	got, err := f.FetchBase64(context.Background(), "file:///etc/passwd")
	if err != nil {
		t.Fatalf("denied fetch must not surface as error: %v", err)
	}
	if got != "PPPP" {
		t.Errorf("got %q, want placeholder", got)
	}
}

// blockingLoader hangs until the fetch deadline cancels it.
type blockingLoader struct{}

func (blockingLoader) Load(ctx context.Context, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingLoader) Sanitize(_ context.Context, uri string) (string, error) {
	return uri, nil
}

func TestFetchBase64TimeoutResolvesToPlaceholder(t *testing.T) {
	f := &Fetcher{
		Loader:      blockingLoader{},
		Timeout:     20 * time.Millisecond,
		Placeholder: "PPPP",
	}
	got, err := f.FetchBase64(context.Background(), "http://example.com/slow.png")
	if err != nil {
		t.Fatalf("timeout must not surface as error: %v", err)
	}
	if got != "PPPP" {
		t.Errorf("got %q, want placeholder", got)
	}
}

func TestFetchBase64CacheBust(t *testing.T) {
	l := &stubLoader{data: []byte("x")}
	f := &Fetcher{
		Loader:    l,
		CacheBust: true,
		now:       func() time.Time { return time.UnixMilli(12345) },
	}
	if _, err := f.FetchBase64(context.Background(), "http://example.com/a.png"); err != nil {
		t.Fatalf("FetchBase64: %v", err)
	}
	if l.lastURI != "http://example.com/a.png?t=12345" {
		t.Errorf("busted URI = %q", l.lastURI)
	}

	if _, err := f.FetchBase64(context.Background(), "http://example.com/a.png?v=2"); err != nil {
		t.Fatalf("FetchBase64: %v", err)
	}
	if l.lastURI != "http://example.com/a.png?v=2&t=12345" {
		t.Errorf("busted URI with existing query = %q", l.lastURI)
	}
}

func TestSplitDataURI(t *testing.T) {
	if got := SplitDataURI("data:image/png;base64,CONTENT"); got != "CONTENT" {
		t.Errorf("got %q", got)
	}
	if got := SplitDataURI("http://example.com/a.png"); got != "" {
		t.Errorf("non-data URI should split to empty, got %q", got)
	}
	if got := SplitDataURI("data:nocomma"); got != "" {
		t.Errorf("comma-less data URI should split to empty, got %q", got)
	}
}
