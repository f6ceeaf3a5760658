package lti

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPKeySetFetcher(t *testing.T) {
	platform, _ := rsaPEMs(t)
	doc, _ := json.Marshal(NewJWKS(KeyPair{KID: "p1", PrivateKey: platform}))

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	f := &HTTPKeySetFetcher{Client: srv.Client()}
	set, err := f.FetchKeySet(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotUA != DefaultUserAgent {
		t.Fatalf("user agent = %q", gotUA)
	}
	if _, ok := set.LookupKeyID("p1"); !ok {
		t.Fatal("kid p1 missing")
	}
}

func TestHTTPKeySetFetcherFailures(t *testing.T) {
	calls := 0
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer failing.Close()

	f := &HTTPKeySetFetcher{Client: failing.Client(), UserAgent: "custom"}
	if _, err := f.FetchKeySet(context.Background(), failing.URL); err == nil {
		t.Fatal("want error on 500")
	}
	if calls != 1 {
		t.Fatalf("fetch retried: %d calls", calls)
	}

	block := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(block)

	f = &HTTPKeySetFetcher{Client: slow.Client(), Timeout: 50 * time.Millisecond}
	start := time.Now()
	if _, err := f.FetchKeySet(context.Background(), slow.URL); err == nil {
		t.Fatal("want timeout")
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("timeout not applied")
	}

	if _, err := f.FetchKeySet(context.Background(), ""); err == nil {
		t.Fatal("want error on empty url")
	}
}
