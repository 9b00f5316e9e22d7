package netstatus

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Fetcher retrieves the network feed
type Fetcher interface {
	Fetch(ctx context.Context) (Feed, error)
}

// HTTPFetcher downloads the feed over HTTP
type HTTPFetcher struct {
	httpClient *http.Client
	url        string
}

// NewHTTPFetcher creates a fetcher for url with a per-request timeout
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context) (Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Feed{}, errors.Wrap(err, "failed to build feed request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Feed{}, errors.Wrap(err, "failed to fetch network feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Feed{}, errors.Errorf("network feed returned status %d", resp.StatusCode)
	}

	var feed Feed
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return Feed{}, errors.Wrap(err, "failed to decode network feed")
	}
	return feed, nil
}
