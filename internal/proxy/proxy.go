package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/williampepple1/listing-notifier/internal/config"
)

// Manager hands out proxies for listing fetches. With Rotate set, each
// request takes the next proxy in the list.
type Manager struct {
	Config *config.ProxyConfig

	proxies []*url.URL
	err     error
	next    atomic.Uint64
}

// NewManager parses the configured proxy list up front; a bad entry
// surfaces as an error on every GetProxyURL call
func NewManager(config *config.ProxyConfig) *Manager {
	m := &Manager{Config: config}
	if !config.Enabled {
		return m
	}
	for _, raw := range config.List {
		u, err := parseProxy(raw, config)
		if err != nil {
			m.err = err
			return m
		}
		m.proxies = append(m.proxies, u)
	}
	return m
}

func parseProxy(raw string, config *config.ProxyConfig) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse proxy %q: missing host", raw)
	}
	if config.Auth.Username != "" && config.Auth.Password != "" {
		u.User = url.UserPassword(config.Auth.Username, config.Auth.Password)
	}
	return u, nil
}

// Enabled reports whether fetches go through a proxy
func (m *Manager) Enabled() bool {
	return m.Config.Enabled && len(m.Config.List) > 0
}

// GetProxyURL returns the proxy for the next request, or nil when proxies are off
func (m *Manager) GetProxyURL() (*url.URL, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.proxies) == 0 {
		return nil, nil
	}

	i := 0
	if m.Config.Rotate {
		i = int((m.next.Add(1) - 1) % uint64(len(m.proxies)))
	}
	// Copy so callers cannot alter the cached entry
	u := *m.proxies[i]
	return &u, nil
}

// ProxyFunc is suitable for http.Transport.Proxy
func (m *Manager) ProxyFunc(_ *http.Request) (*url.URL, error) {
	return m.GetProxyURL()
}
