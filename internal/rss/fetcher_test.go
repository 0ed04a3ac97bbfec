package rss

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bryan-buckman/rssbox/internal/model"
	"github.com/bryan-buckman/rssbox/internal/trash"
)

func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cache-Control") != "no-cache" || r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSuccess(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, rssFixture)
	f := NewFetcher(FetcherConfig{}, nil)

	entries, err := f.Fetch(context.Background(), model.SyncView{ID: "s", URL: srv.URL, Format: model.FormatAuto})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries, got: %d", len(entries))
	}
}

func TestFetchAppliesRemovedFilter(t *testing.T) {
	srv := newFeedServer(t, http.StatusOK, rssFixture)
	removed := hashSet{trash.Hash("https://example.com/3"): true}
	f := NewFetcher(FetcherConfig{}, removed)

	entries, err := f.Fetch(context.Background(), model.SyncView{URL: srv.URL, Format: model.FormatRSS})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(entries) != 1 || entries[0].URL != "https://example.com/1" {
		t.Errorf("Expected removed entry to be filtered, got: %+v", entries)
	}
}

func TestFetchErrors(t *testing.T) {
	notFound := newFeedServer(t, http.StatusNotFound, "gone")
	garbage := newFeedServer(t, http.StatusOK, "this is not a feed")
	wrongHint := newFeedServer(t, http.StatusOK, atomFixture)

	tests := []struct {
		name   string
		url    string
		format model.FeedFormat
		kind   ErrorKind
	}{
		{"non-2xx", notFound.URL, model.FormatAuto, KindNetwork},
		{"unreachable", "http://127.0.0.1:1/feed", model.FormatAuto, KindNetwork},
		{"bad url", "://nope", model.FormatAuto, KindNetwork},
		{"garbage body", garbage.URL, model.FormatAuto, KindParse},
		{"wrong hint", wrongHint.URL, model.FormatRSS, KindParse},
	}

	f := NewFetcher(FetcherConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), model.SyncView{URL: tt.url, Format: tt.format})
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Expected *FetchError, got: %v", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Expected kind %s, got: %s (%v)", tt.kind, fe.Kind, fe.Err)
			}
		})
	}
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewFetcher(FetcherConfig{}, nil).Fetch(ctx, model.SyncView{URL: srv.URL})
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindNetwork {
		t.Errorf("Expected network error on cancellation, got: %v", err)
	}
}

func TestClampTimeout(t *testing.T) {
	if got := ClampTimeout(3 * time.Second); got != MinTimeout {
		t.Errorf("Expected clamp to %s, got: %s", MinTimeout, got)
	}
	if got := ClampTimeout(30 * time.Second); got != 30*time.Second {
		t.Errorf("Expected 30s to be kept, got: %s", got)
	}
	f := NewFetcher(FetcherConfig{Timeout: time.Second}, nil)
	if f.timeout != MinTimeout {
		t.Errorf("Expected fetcher timeout %s, got: %s", MinTimeout, f.timeout)
	}
}

func TestProxySelection(t *testing.T) {
	f := NewFetcher(FetcherConfig{Proxy: ProxyConfig{
		HTTPHost:   "127.0.0.1",
		HTTPPort:   3218,
		Socks5Host: "",
		Socks5Port: 1080,
	}}, nil)

	direct := f.client(model.ProxyNone)
	if f.client(model.ProxyHTTP) == direct {
		t.Error("Expected a dedicated client for the http proxy")
	}
	if f.client(model.ProxySocks5) != direct {
		t.Error("Expected unusable socks5 proxy to fall back to direct")
	}
	if f.client(model.ProxyKind("carrier-pigeon")) != direct {
		t.Error("Expected unknown selection to fall back to direct")
	}
}

func TestProxyURL(t *testing.T) {
	tests := []struct {
		scheme, host string
		port         int
		want         string
	}{
		{"http", "127.0.0.1", 3218, "http://127.0.0.1:3218"},
		{"socks5", "localhost", 1080, "socks5://localhost:1080"},
		{"http", "http://proxy.lan/", 8080, "http://proxy.lan:8080"},
		{"http", "::1", 8080, "http://[::1]:8080"},
		{"http", "", 8080, ""},
		{"http", "host", 0, ""},
		{"http", "host", 70000, ""},
	}
	for _, tt := range tests {
		got := proxyURL(tt.scheme, tt.host, tt.port)
		if tt.want == "" {
			if got != nil {
				t.Errorf("proxyURL(%q, %q, %d) = %s, want nil", tt.scheme, tt.host, tt.port, got)
			}
			continue
		}
		if got == nil || got.String() != tt.want {
			t.Errorf("proxyURL(%q, %q, %d) = %v, want %s", tt.scheme, tt.host, tt.port, got, tt.want)
		}
	}
}

func TestDomainLimiterDelay(t *testing.T) {
	dl := newDomainLimiter(100 * time.Millisecond)
	ctx := context.Background()

	if err := dl.acquire(ctx, "example.com"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	dl.release("example.com")

	start := time.Now()
	if err := dl.acquire(ctx, "example.com"); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	dl.release("example.com")
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("Expected delay between same-host requests, waited only %s", elapsed)
	}

	start = time.Now()
	dl.acquire(ctx, "other.com")
	dl.release("other.com")
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Expected no delay for a different host, waited %s", elapsed)
	}
}
