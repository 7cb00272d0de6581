package scraper

import (
	"context"
	"errors"

	"github.com/chromedp/chromedp"
	"github.com/williampepple1/listing-notifier/internal/config"
	"github.com/williampepple1/listing-notifier/internal/proxy"
)

// BrowserScraper renders listing pages in headless Chrome for sites that
// refuse plain HTTP clients
type BrowserScraper struct {
	Config *config.AppConfig
	Proxy  *proxy.Manager
}

// NewBrowserScraper creates a new browser scraper
func NewBrowserScraper(config *config.AppConfig) *BrowserScraper {
	return &BrowserScraper{
		Config: config,
		Proxy:  proxy.NewManager(&config.Proxies),
	}
}

// Fetch navigates to the URL, waits for the body and returns the rendered HTML
func (s *BrowserScraper) Fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Config.Scraper.Timeout+s.Config.Browser.WaitTime)
	defer cancel()

	// Configure browser options
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.Config.Browser.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoSandbox,
		chromedp.UserAgent(s.Config.Browser.UserAgent),
	)

	// Chrome takes one proxy per browser; credentials in the URL are not supported
	proxyURL, err := s.Proxy.GetProxyURL()
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	if proxyURL != nil {
		opts = append(opts, chromedp.ProxyServer(proxyURL.Scheme+"://"+proxyURL.Host))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	var html string
	err = chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.Config.Browser.WaitTime),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	if html == "" {
		return "", &FetchError{URL: url, Err: errors.New("browser returned empty document")}
	}
	return html, nil
}
