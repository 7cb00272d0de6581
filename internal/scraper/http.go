package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/internal/proxy"
)

// maxBodyBytes caps how much of a listing page is read into memory
const maxBodyBytes = 8 << 20

// HTTPScraper fetches listing pages with a plain GET
type HTTPScraper struct {
	Config *config.AppConfig
	Proxy  *proxy.Manager
	client *http.Client
}

// NewHTTPScraper creates a new HTTP scraper
func NewHTTPScraper(config *config.AppConfig) *HTTPScraper {
	s := &HTTPScraper{
		Config: config,
		Proxy:  proxy.NewManager(&config.Proxies),
	}
	s.client = &http.Client{
		Transport: &http.Transport{Proxy: s.Proxy.ProxyFunc},
		Timeout:   config.Scraper.Timeout,
	}
	return s
}

// Fetch performs a GET and returns the body. Retries only when MaxRetries > 0.
func (s *HTTPScraper) Fetch(ctx context.Context, target string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= s.Config.Scraper.MaxRetries; attempt++ {
		if attempt > 0 {
			// Wait before retrying
			retryWait := s.Config.Scraper.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return "", &FetchError{URL: target, Err: ctx.Err()}
			case <-time.After(retryWait):
			}
		}

		body, err := s.fetchOnce(ctx, target)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return "", lastErr
}

func (s *HTTPScraper) fetchOnce(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}

	// Set a random user agent if available
	if agents := s.Config.Scraper.UserAgents; len(agents) > 0 {
		req.Header.Set("User-Agent", agents[rand.Intn(len(agents))])
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{
			URL:        target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("received status code %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: target, StatusCode: resp.StatusCode, Err: err}
	}
	if len(data) == 0 {
		return "", &FetchError{URL: target, StatusCode: resp.StatusCode, Err: errors.New("empty response body")}
	}
	return string(data), nil
}
