package trickplay

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetcher performs an authenticated GET
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*http.Response, error)
}

// HTTPPrefetcher warms sheet images by reading them through the
// authenticated server client.
type HTTPPrefetcher struct {
	fetcher Fetcher
}

// NewHTTPPrefetcher creates a new prefetcher
func NewHTTPPrefetcher(fetcher Fetcher) *HTTPPrefetcher {
	return &HTTPPrefetcher{fetcher: fetcher}
}

// Prefetch implements Prefetcher
func (p *HTTPPrefetcher) Prefetch(ctx context.Context, url string) error {
	resp, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("reading sheet: %w", err)
	}
	return nil
}
