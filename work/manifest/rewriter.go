package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/grafov/m3u8"

	"iltv-proxy/work/buffer"
	"iltv-proxy/work/cache"
	"iltv-proxy/work/client"
	"iltv-proxy/work/config"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/metrics"
	"iltv-proxy/work/utils"
)

const (
	// targetVariant is the mandatory quality the proxy serves. There is no
	// fallback variant selection: a master manifest without this variant is
	// a hard error.
	targetVariant = "index_2500.m3u8"

	// authPrefixMarker separates the rotating auth prefix from the variant
	// filename inside the variant path.
	authPrefixMarker = "/index"

	segmentExt = ".ts"

	// SegmentRoute is the local route prefix rewritten segment lines point at.
	SegmentRoute = "/segments/"
)

var (
	// ErrVariantMissing reports a master manifest without the target-quality
	// variant line.
	ErrVariantMissing = errors.New("target variant not found in master manifest")

	// ErrAuthPrefixMissing reports a variant path without the expected auth
	// prefix marker.
	ErrAuthPrefixMissing = errors.New("auth prefix marker not found in variant path")

	// ErrStreamInterrupted reports a segment copy that failed after response
	// headers and part of the body went out. Callers must not write anything
	// further on the connection.
	ErrStreamInterrupted = errors.New("segment stream interrupted")
)

// Source yields the current upstream master manifest URL. The proxy
// re-resolves through it on demand; the resolver's link cache keeps that
// cheap.
type Source func(ctx context.Context) (string, error)

// Proxy turns an upstream HLS stream with short-lived path-embedded auth
// into a locally served one: it rewrites the variant manifest so segment
// references resolve back through this service, and rebuilds the auth prefix
// for every segment fetch.
type Proxy struct {
	config    *config.Config
	client    *client.HeaderSettingClient
	manifests *cache.ManifestCache
	buffers   *buffer.Pool
	source    Source
}

// segmentCopyBuffer is the chunk size for streaming segment bodies.
const segmentCopyBuffer = 64 * 1024

// NewProxy creates a manifest proxy over the given master manifest source.
func NewProxy(cfg *config.Config, httpClient *client.HeaderSettingClient, source Source) *Proxy {
	return &Proxy{
		config:    cfg,
		client:    httpClient,
		manifests: cache.NewManifestCache(cfg.ManifestTTL),
		buffers:   buffer.NewPool(segmentCopyBuffer),
		source:    source,
	}
}

// RewrittenVariant produces the variant manifest with every segment line
// pointed at the local segment route. With requestBase empty the segment
// lines are relative ("/segments/..."); otherwise they are fully qualified
// against requestBase for clients that need absolute URLs.
func (p *Proxy) RewrittenVariant(ctx context.Context, requestBase string) (string, error) {
	masterURL, err := p.source(ctx)
	if err != nil {
		return "", err
	}

	master, err := p.fetchManifest(ctx, masterURL)
	if err != nil {
		return "", err
	}

	variantPath, err := VariantPath(master)
	if err != nil {
		return "", err
	}

	variantURL, err := resolveAgainst(masterURL, variantPath)
	if err != nil {
		return "", err
	}

	variant, err := p.fetchManifest(ctx, variantURL)
	if err != nil {
		return "", err
	}

	return RewriteSegments(variant, requestBase), nil
}

// VariantPath locates the target-quality variant line of a master manifest.
// Conforming manifests are decoded with the m3u8 parser; manifests the
// parser rejects fall back to a line scan. Absence of the target variant is
// a hard error.
func VariantPath(master string) (string, error) {
	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(master), true)
	if err == nil && listType == m3u8.MASTER {
		mp := playlist.(*m3u8.MasterPlaylist)
		for _, v := range mp.Variants {
			if v != nil && strings.Contains(v.URI, targetVariant) {
				return v.URI, nil
			}
		}
		return "", ErrVariantMissing
	}

	for _, line := range strings.Split(master, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, targetVariant) {
			return line, nil
		}
	}
	return "", ErrVariantMissing
}

// RewriteSegments replaces every segment line of a variant manifest with a
// path under the local segment route, preserving all other lines verbatim
// and in order. Input is expected to be a raw upstream manifest; lines that
// already carry the local route prefix pass through untouched.
func RewriteSegments(variant, requestBase string) string {
	lines := strings.Split(variant, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if !strings.HasSuffix(trimmed, segmentExt) || strings.Contains(trimmed, SegmentRoute) {
			continue
		}
		lines[i] = requestBase + SegmentRoute + trimmed
	}
	return strings.Join(lines, "\n")
}

// AuthPrefix cuts the rotating auth prefix out of a variant path: everything
// before the marker that precedes the variant filename.
func AuthPrefix(variantPath string) (string, error) {
	idx := strings.Index(variantPath, authPrefixMarker)
	if idx <= 0 {
		return "", ErrAuthPrefixMissing
	}
	return variantPath[:idx], nil
}

// fetchManifest retrieves a manifest body through the short-TTL manifest
// cache, so concurrent segment requests inside the TTL window share one
// upstream fetch.
func (p *Proxy) fetchManifest(ctx context.Context, manifestURL string) (string, error) {
	if body, ok := p.manifests.Get(manifestURL); ok {
		metrics.CacheHits.WithLabelValues("manifest").Inc()
		return body, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()

	resp, err := p.client.Get(ctx, manifestURL, "")
	if err != nil {
		logger.Error("fetching manifest %s: %v", utils.LogURL(p.config, manifestURL), err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		logger.Error("manifest %s -> HTTP %d", utils.LogURL(p.config, manifestURL), resp.StatusCode)
		return "", fmt.Errorf("manifest fetch status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	body := string(raw)
	p.manifests.Set(manifestURL, body)
	return body, nil
}

// resolveAgainst resolves a possibly relative manifest path against the
// directory of its master manifest URL.
func resolveAgainst(masterURL, ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	base, err := url.Parse(masterURL)
	if err != nil {
		return "", fmt.Errorf("parsing master URL: %w", err)
	}
	return base.Scheme + "://" + base.Host + path.Dir(base.Path) + "/" + ref, nil
}

// ClearCache drops the cached manifests, forcing fresh fetches.
func (p *Proxy) ClearCache() {
	p.manifests.Clear()
}
