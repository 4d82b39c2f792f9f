package proxy

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const DefaultTimeout = 30 * time.Second

// Manager hands out a client per proxy target, all sharing one HTTP
// client and one set of credentials.
type Manager struct {
	client *http.Client
	creds  Credentials

	mu      sync.Mutex
	clients map[string]*Client
}

func NewManager(timeout time.Duration, creds Credentials) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		client:  &http.Client{Timeout: timeout},
		creds:   creds,
		clients: map[string]*Client{},
	}
}

// For returns the client for the proxy at target. The target must be
// an absolute http or https URL.
func (m *Manager) For(target string) (Proxy, error) {
	u, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	key := u.String()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.clients[key]; ok {
		return c, nil
	}
	c := New(m.client, key, m.creds)
	m.clients[key] = c
	return c, nil
}

// ParseTarget validates and normalises a proxy target URL.
func ParseTarget(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing proxy target %q", target)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("proxy target %q is not an http or https URL", target)
	}
	if u.Host == "" {
		return nil, errors.Errorf("proxy target %q has no host", target)
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

// ClusterHost is the host name of the proxy target, which stands in
// for the address of services exposed on every node of the cluster.
func ClusterHost(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
