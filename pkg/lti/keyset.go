// pkg/lti/keyset.go
package lti

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// DefaultUserAgent identifies the tool when fetching platform key sets.
const DefaultUserAgent = "lti-1-3-go-library"

// KeySetFetcher loads a platform's published JWKS.
type KeySetFetcher interface {
	FetchKeySet(ctx context.Context, url string) (jwk.Set, error)
}

// HTTPKeySetFetcher fetches key sets over HTTP. It never retries: a failed
// fetch is reported to the caller as is.
type HTTPKeySetFetcher struct {
	Client    *http.Client
	UserAgent string
	// Timeout bounds each fetch (default 10s).
	Timeout time.Duration
	// MaxBytes caps the response body (default 1 MiB).
	MaxBytes int64
}

func (f *HTTPKeySetFetcher) FetchKeySet(ctx context.Context, url string) (jwk.Set, error) {
	if url == "" {
		return nil, fmt.Errorf("keyset: empty url")
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "application/json")

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("keyset: %s returned %d", url, resp.StatusCode)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, err
	}
	return jwk.Parse(body)
}
