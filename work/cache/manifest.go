package cache

import (
	"time"

	"github.com/maypok86/otter/v2"
)

// ManifestCache holds fetched master manifests for a short, fixed window so a
// burst of segment requests from one playback session collapses into a single
// upstream manifest fetch. The TTL is deliberately seconds-scale: the auth
// prefix embedded in the manifest rotates on a provider-controlled schedule
// we cannot predict, so long retention would serve stale credentials.
type ManifestCache struct {
	cache *otter.Cache[string, string]
}

// NewManifestCache creates a manifest cache whose entries expire ttl after
// they are written.
func NewManifestCache(ttl time.Duration) *ManifestCache {
	c := otter.Must(&otter.Options[string, string]{
		MaximumSize:      64,
		ExpiryCalculator: otter.ExpiryWriting[string, string](ttl),
	})
	return &ManifestCache{cache: c}
}

// Get returns the cached manifest body for a master URL, if still fresh.
func (mc *ManifestCache) Get(url string) (string, bool) {
	return mc.cache.GetIfPresent(url)
}

// Set stores a manifest body under its master URL.
func (mc *ManifestCache) Set(url, body string) {
	mc.cache.Set(url, body)
}

// Clear drops all cached manifests.
func (mc *ManifestCache) Clear() {
	mc.cache.InvalidateAll()
}
