package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"iltv-proxy/work/cache"
	"iltv-proxy/work/client"
	"iltv-proxy/work/config"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/metrics"
	"iltv-proxy/work/utils"
)

// Fetcher retrieves upstream documents through the content cache. Every fetch
// is bounded by the configured timeout; network errors and non-200 statuses
// degrade to an error result, never a hang or a panic.
type Fetcher struct {
	config *config.Config
	client *client.HeaderSettingClient
	store  *cache.Store
}

// New creates a Fetcher backed by the given content cache store.
func New(cfg *config.Config, httpClient *client.HeaderSettingClient, store *cache.Store) *Fetcher {
	return &Fetcher{
		config: cfg,
		client: httpClient,
		store:  store,
	}
}

// Text fetches url and returns the response body as a string, consulting the
// content cache first with the caller-supplied ttl. Only successful bodies
// are cached.
func (f *Fetcher) Text(ctx context.Context, url string, ttl time.Duration) (string, error) {
	if body, ok := f.store.GetString(url, ttl); ok {
		metrics.CacheHits.WithLabelValues("content").Inc()
		return body, nil
	}

	body, err := f.fetch(ctx, url)
	if err != nil {
		return "", err
	}

	f.store.Set(url, body)
	return body, nil
}

// JSON fetches url, decodes the body into v without caching. Provider APIs
// that wrap their payload in a top-level "root" object should be decoded via
// UnwrapRoot.
func (f *Fetcher) JSON(ctx context.Context, url string, v any) error {
	body, err := f.fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("decoding JSON from %s: %w", utils.LogURL(f.config, url), err)
	}
	return nil
}

// fetch performs the bounded GET and returns the body on HTTP 200.
func (f *Fetcher) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.FetchTimeout)
	defer cancel()

	resp, err := f.client.Get(ctx, url, "")
	if err != nil {
		logger.Error("GET %s failed: %v", utils.LogURL(f.config, url), err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("%s -> HTTP %d", utils.LogURL(f.config, url), resp.StatusCode)
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, utils.LogURL(f.config, url))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("reading body from %s: %v", utils.LogURL(f.config, url), err)
		return "", err
	}
	return string(body), nil
}

// UnwrapRoot unwraps the provider convention of nesting the payload under a
// top-level "root" key. Documents without the wrapper pass through unchanged.
func UnwrapRoot(raw json.RawMessage) json.RawMessage {
	var wrapper struct {
		Root json.RawMessage `json:"root"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Root) > 0 {
		return wrapper.Root
	}
	return raw
}
