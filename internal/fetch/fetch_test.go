package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"intel-mcp/internal/mcp"
)

func TestClientGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "intel-mcp/") {
			t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(srv.Client())
	resp, err := c.Get(context.Background(), srv.URL, map[string]string{"X-Api-Key": "k"})
	if err != nil {
		t.Fatal(err)
	}
	if !resp.OK() || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response %d %s", resp.Status, resp.Body)
	}

	resp, err = c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusUnauthorized || resp.OK() {
		t.Fatalf("non-2xx should be returned, not raised: %d", resp.Status)
	}
}

func TestClientLimitsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	c := New(srv.Client())
	c.MaxBody = 10
	resp, err := c.Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Body) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(resp.Body))
	}
}

func TestClientHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := New(srv.Client()).Get(ctx, srv.URL, nil); err == nil {
		t.Fatal("expected a deadline error")
	}
}

type countingFetcher struct {
	calls  atomic.Int32
	status int
}

func (f *countingFetcher) Get(context.Context, string, map[string]string) (*mcp.FetchResponse, error) {
	f.calls.Add(1)
	return &mcp.FetchResponse{Status: f.status, Body: []byte("{}")}, nil
}

func TestCachingFetcher(t *testing.T) {
	next := &countingFetcher{status: 200}
	f := WithCache(next, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := f.Get(context.Background(), "https://x/a", map[string]string{"K": "1"}); err != nil {
			t.Fatal(err)
		}
	}
	if next.calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", next.calls.Load())
	}
	if _, err := f.Get(context.Background(), "https://x/a", map[string]string{"K": "2"}); err != nil {
		t.Fatal(err)
	}
	if next.calls.Load() != 2 {
		t.Fatal("different credentials must not share a cache entry")
	}

	failing := &countingFetcher{status: 503}
	f = WithCache(failing, time.Minute)
	_, _ = f.Get(context.Background(), "https://x/b", nil)
	_, _ = f.Get(context.Background(), "https://x/b", nil)
	if failing.calls.Load() != 2 {
		t.Fatal("failed responses must not be cached")
	}

	if WithCache(next, 0) != mcp.RemoteFetcher(next) {
		t.Fatal("zero TTL should disable caching")
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	c.Set("k", &mcp.FetchResponse{Status: 200}, time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit")
	}
	now = now.Add(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected expiry")
	}
	if c.Len() != 0 {
		t.Fatal("expired entry should be evicted on read")
	}
}
