package rss

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/rssbox/internal/model"
)

const (
	// MinTimeout is the lower bound of the per-request timeout.
	MinTimeout = 10 * time.Second
	// MaxConcurrencyPerDomain limits parallel requests to any single host.
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the default minimum delay between requests to the same host.
	DelayBetweenDomainRequests = 500 * time.Millisecond
	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxBodySize = 16 << 20
)

// ProxyConfig holds the forward proxies subscriptions may select.
type ProxyConfig struct {
	HTTPHost   string
	HTTPPort   int
	Socks5Host string
	Socks5Port int
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	// Timeout is raised to MinTimeout when lower.
	Timeout   time.Duration
	Proxy     ProxyConfig
	UserAgent string
	// HostDelay is the minimum gap between requests to one host. Zero disables it.
	HostDelay time.Duration
}

// ClampTimeout returns max(d, MinTimeout).
func ClampTimeout(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newDomainLimiter(delay time.Duration) *domainLimiter {
	return &domainLimiter{
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if dl.delay > 0 && !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < dl.delay {
			select {
			case <-time.After(dl.delay - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	return u.Host
}

// Fetcher retrieves, parses and dedups one subscription at a time.
// It is safe for concurrent use.
type Fetcher struct {
	parser        *Parser
	removed       RemovedSet
	timeout       time.Duration
	userAgent     string
	clients       map[model.ProxyKind]*http.Client
	domainLimiter *domainLimiter
}

// NewFetcher builds one HTTP client per proxy selection.
// A proxy with an unusable address falls back to a direct client.
func NewFetcher(cfg FetcherConfig, removed RemovedSet) *Fetcher {
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := ClampTimeout(cfg.Timeout)

	direct := newClient(nil, timeout)
	clients := map[model.ProxyKind]*http.Client{model.ProxyNone: direct}
	for kind, addr := range map[model.ProxyKind]*url.URL{
		model.ProxyHTTP:   proxyURL("http", cfg.Proxy.HTTPHost, cfg.Proxy.HTTPPort),
		model.ProxySocks5: proxyURL("socks5", cfg.Proxy.Socks5Host, cfg.Proxy.Socks5Port),
	} {
		if addr == nil {
			slog.Warn("Proxy not configured, using direct connection", "proxy", kind)
			clients[kind] = direct
			continue
		}
		clients[kind] = newClient(addr, timeout)
	}

	return &Fetcher{
		parser:        NewParser(),
		removed:       removed,
		timeout:       timeout,
		userAgent:     ua,
		clients:       clients,
		domainLimiter: newDomainLimiter(cfg.HostDelay),
	}
}

func newClient(proxy *url.URL, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	if proxy != nil {
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// proxyURL returns nil when host or port is unusable.
func proxyURL(scheme, host string, port int) *url.URL {
	host = strings.TrimSpace(host)
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" || port <= 0 || port > 65535 {
		return nil
	}
	u, err := url.Parse(scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil
	}
	return u
}

// client picks the client of the selection, falling back to direct.
func (f *Fetcher) client(kind model.ProxyKind) *http.Client {
	if c, ok := f.clients[kind]; ok {
		return c
	}
	return f.clients[model.ProxyNone]
}

// Fetch downloads and parses the feed of view and drops removed entries.
// Errors are always *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, view model.SyncView) ([]model.Entry, error) {
	domain := extractDomain(view.URL)
	if err := f.domainLimiter.acquire(ctx, domain); err != nil {
		return nil, networkError(view.URL, fmt.Errorf("rate limit cancelled: %w", err))
	}
	defer f.domainLimiter.release(domain)

	body, err := f.download(ctx, view)
	if err != nil {
		return nil, networkError(view.URL, err)
	}

	entries, err := f.parser.Parse(view.Format, body)
	if err != nil {
		return nil, parseError(view.URL, err)
	}
	return FilterRemoved(entries, f.removed), nil
}

func (f *Fetcher) download(ctx context.Context, view model.SyncView) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, view.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client(view.Proxy).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}
