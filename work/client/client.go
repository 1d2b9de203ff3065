package client

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/ratelimit"

	"iltv-proxy/work/config"
)

// HeaderSettingClient wraps http.Client to inject the configured User-Agent
// (and an optional per-request Referer) on every outbound request, and to
// rate-limit requests per upstream host. Providers are scrape targets; an
// unthrottled burst against one of them is a quick way to get blocked.
type HeaderSettingClient struct {
	Client   *http.Client
	config   *config.Config
	limiters map[string]ratelimit.Limiter
	mu       sync.Mutex
}

// NewHeaderSettingClient builds a client suitable for both short document
// fetches and long-lived segment streaming. The transport only bounds header
// arrival; overall deadlines come from the request context.
func NewHeaderSettingClient(cfg *config.Config) *HeaderSettingClient {
	client := &http.Client{
		Timeout: 0, // per-request contexts carry the deadline
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			DisableKeepAlives:     false,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &HeaderSettingClient{
		Client:   client,
		config:   cfg,
		limiters: make(map[string]ratelimit.Limiter),
	}
}

// Do applies headers and the per-host rate limit, then executes the request.
func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	hsc.limiterFor(req.URL.Host).Take()
	return hsc.Client.Do(req)
}

// Get issues a GET for url with the given context and optional Referer.
func (hsc *HeaderSettingClient) Get(ctx context.Context, url, referer string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	return hsc.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", hsc.config.UserAgent)
	}
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Accept", "*/*")
}

// limiterFor returns the rate limiter for an upstream host, creating it on
// first use.
func (hsc *HeaderSettingClient) limiterFor(host string) ratelimit.Limiter {
	hsc.mu.Lock()
	defer hsc.mu.Unlock()

	if l, ok := hsc.limiters[host]; ok {
		return l
	}
	l := ratelimit.New(hsc.config.RequestsPerSec)
	hsc.limiters[host] = l
	return l
}
