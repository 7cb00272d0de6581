package scraper

import (
	"context"
	"fmt"

	"github.com/williampepple1/listing-notifier/internal/config"
)

// Fetcher retrieves the raw HTML of a listing page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchError is returned for non-2xx responses, timeouts and transport failures
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299) {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// New creates a fetcher based on the configuration
func New(config *config.AppConfig) Fetcher {
	if config.Browser.Enabled {
		return NewBrowserScraper(config)
	}
	return NewHTTPScraper(config)
}
