package proxy

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// Manager handles the rotation of proxies and user agents.
type Manager struct {
	proxies    []*url.URL
	userAgents []string
	mu         sync.Mutex
	proxyIndex int
}

// NewManager parses the proxy list up front so a bad entry fails at startup.
// An empty userAgents list falls back to a small set of desktop browsers.
func NewManager(proxies, userAgents []string) (*Manager, error) {
	m := &Manager{userAgents: userAgents}
	if len(m.userAgents) == 0 {
		m.userAgents = defaultUserAgents
	}
	for _, p := range proxies {
		u, err := url.Parse(p)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q", p)
		}
		m.proxies = append(m.proxies, u)
	}
	return m, nil
}

// NextProxy returns a proxy URL from the list, rotating sequentially.
// It returns nil when no proxies are configured.
func (m *Manager) NextProxy() *url.URL {
	if len(m.proxies) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.proxies[m.proxyIndex]
	m.proxyIndex = (m.proxyIndex + 1) % len(m.proxies)
	return p
}

// ProxyFunc plugs the rotation into http.Transport.Proxy.
func (m *Manager) ProxyFunc(*http.Request) (*url.URL, error) {
	return m.NextProxy(), nil
}

// UserAgent returns a random user agent string.
func (m *Manager) UserAgent() string {
	return m.userAgents[rand.IntN(len(m.userAgents))]
}
