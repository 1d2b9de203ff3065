package resolver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/grafana/regexp"

	"iltv-proxy/work/cache"
	"iltv-proxy/work/client"
	"iltv-proxy/work/config"
	"iltv-proxy/work/fetch"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/metrics"
	"iltv-proxy/work/types"
	"iltv-proxy/work/utils"
)

const (
	kanBaseURL  = "https://www.kan.org.il"
	kanLobbyURL = kanBaseURL + "/lobby/kan11"
)

// extractor is one pure extraction attempt against a fetched page. It returns
// the extracted stream URL or "" when the pattern does not apply. Extractors
// must fail softly: a malformed or partially matching document yields "".
type extractor struct {
	name string
	fn   func(pageURL, body string) string
}

// ScrapeResolver serves Kan. Kan pages embed their stream location in one of
// several markup shapes depending on the player generation, so resolution is
// an ordered walk over extraction patterns where the first match wins.
type ScrapeResolver struct {
	config       *config.Config
	fetcher      *fetch.Fetcher
	contentCache *cache.Store
	linkCache    *cache.Store
	extractors   []extractor
}

var (
	dailymotionRx   = regexp.MustCompile(`(?s)dailymotion.*?video:\s*?"(.*?)"`)
	bynetRx         = regexp.MustCompile(`bynetURL:\s*"(.*?)"`)
	urlRedirectorRx = regexp.MustCompile(`"UrlRedirector":"(.*?)"`)
	kanMediaHostRx  = regexp.MustCompile(`media\.(ma)?kan\.org\.il`)
	inlineHLSRx     = regexp.MustCompile(`hls:\s*?"(.*?)"`)
	kalturaDataRx   = regexp.MustCompile(`(?s)window\.kalturaIframePackageData\s*=\s*\{(.*?)\};`)

	vodSectionRx = regexp.MustCompile(`(?s)<div class="vod-section(.*?)<div class="section-content">`)
	vodItemRx    = regexp.MustCompile(`(?s)<div aria-label="(.*?)">.*?url\((.*?)">.*?<div class="info-description">(.*?)</div>\s*<a href="(.*?)"`)
)

// NewScrapeResolver creates the Kan resolver with its own content and link
// caches. The extraction order is fixed: embed identifiers take priority over
// player redirects, which take priority over inline HLS fields and Kaltura
// packages.
func NewScrapeResolver(cfg *config.Config, httpClient *client.HeaderSettingClient) *ScrapeResolver {
	contentCache := cache.NewStore()
	r := &ScrapeResolver{
		config:       cfg,
		contentCache: contentCache,
		linkCache:    cache.NewStore(),
	}
	r.fetcher = fetch.New(cfg, httpClient, contentCache)
	r.extractors = []extractor{
		{"dailymotion", extractDailymotion},
		{"byplayer", extractByPlayer},
		{"inline-hls", extractInlineHLS},
		{"kaltura", extractKaltura},
	}
	return r
}

// Name implements Resolver.
func (r *ScrapeResolver) Name() string { return "kan" }

// Resolve fetches the page behind pageURL (through the content cache) and
// runs the extraction chain over it. A page matching none of the patterns
// resolves to ErrNotFound.
func (r *ScrapeResolver) Resolve(ctx context.Context, pageURL string, preferHTTP bool) (*types.StreamDescriptor, error) {
	metrics.ResolveAttempts.WithLabelValues(r.Name()).Inc()

	// The link cache is keyed by the original page URL, not the normalized
	// one, so repeated requests for the same upstream markup hit the cache
	// regardless of how the URL was mangled.
	cacheKey := pageURL + "_" + utils.ProtocolKey(preferHTTP)
	if cached, ok := r.linkCache.Get(cacheKey, r.config.LinkCacheTTL); ok {
		metrics.CacheHits.WithLabelValues("link").Inc()
		return cached.(*types.StreamDescriptor), nil
	}

	url := normalizePageURL(pageURL, preferHTTP)

	body, err := r.fetcher.Text(ctx, url, r.config.ContentCacheTTL)
	if err != nil || body == "" {
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	var resolved string
	for _, ex := range r.extractors {
		if resolved = ex.fn(url, body); resolved != "" {
			logger.Debug("extractor %q matched for %s", ex.name, utils.LogURL(r.config, url))
			break
		}
	}
	if resolved == "" {
		logger.Warn("no extraction pattern matched for %s", utils.LogURL(r.config, url))
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	desc := &types.StreamDescriptor{
		URL:     utils.ApplyProtocolPreference(resolved, preferHTTP),
		Headers: map[string]string{"User-Agent": r.config.UserAgent},
	}
	logger.Info("resolved %s to %s", utils.LogURL(r.config, pageURL), utils.LogURL(r.config, desc.URL))

	r.linkCache.Set(cacheKey, desc)
	return desc, nil
}

// normalizePageURL repairs the URL shapes Kan markup produces: preference
// scheme downgrade, doubly concatenated URLs where a second scheme marker
// appears mid-string, and a duplicated HLS path segment.
func normalizePageURL(pageURL string, preferHTTP bool) string {
	url := pageURL
	if preferHTTP {
		url = strings.ReplaceAll(url, "https", "http")
	}
	for _, marker := range []string{"http://", "https://"} {
		if i := strings.LastIndex(url, marker); i > 0 {
			url = url[i:]
		}
	}
	return strings.ReplaceAll(url, "HLS/HLS", "HLS")
}

// extractDailymotion matches embedded third-party player identifiers and
// rebuilds the canonical embed URL.
func extractDailymotion(_, body string) string {
	m := dailymotionRx.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return "https://www.dailymotion.com/embed/video/" + m[1]
}

// extractByPlayer handles player-redirect pages: the target sits in an inline
// script, under either a bynetURL or an escaped UrlRedirector field.
func extractByPlayer(pageURL, body string) string {
	if !strings.Contains(pageURL, "ByPlayer") {
		return ""
	}
	m := bynetRx.FindStringSubmatch(body)
	if m == nil {
		m = urlRedirectorRx.FindStringSubmatch(body)
	}
	if m == nil {
		return ""
	}
	// UrlRedirector values carry JSON-escaped ampersands in the raw markup.
	url := strings.ReplaceAll(m[1], `\u0026`, "&")
	return strings.ReplaceAll(url, "&amp;", "&")
}

// extractInlineHLS pulls the inline "hls:" field from pages already hosted on
// the provider's media domain.
func extractInlineHLS(pageURL, body string) string {
	if !kanMediaHostRx.MatchString(pageURL) {
		return ""
	}
	m := inlineHLSRx.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

// extractKaltura parses the embedded Kaltura iframe package JSON and pulls
// the nested HLS stream URL out of it. Any decode failure is a non-match.
func extractKaltura(pageURL, body string) string {
	if !strings.Contains(pageURL, "kaltura") {
		return ""
	}
	m := kalturaDataRx.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	var pkg struct {
		EntryResult struct {
			Meta struct {
				HLSStreamURL string `json:"hlsStreamUrl"`
			} `json:"meta"`
		} `json:"entryResult"`
	}
	if err := json.Unmarshal([]byte("{"+m[1]+"}"), &pkg); err != nil {
		logger.Debug("kaltura package parse failed: %v", err)
		return ""
	}
	return pkg.EntryResult.Meta.HLSStreamURL
}

// Channels implements Resolver. The live lineup streams directly from the
// provider's media hosts, so channel URLs need no resolution.
func (r *ScrapeResolver) Channels() []types.Channel {
	return []types.Channel{
		{
			ID:       "kan11",
			Name:     "כאן 11",
			URL:      "https://kan11.media.kan.org.il/hls/live/2024514/2024514/master.m3u8",
			Logo:     "https://www.kan.org.il/images/logo_kan.jpg",
			Provider: r.Name(),
		},
		{
			ID:       "makan",
			Name:     "מכאן",
			URL:      "https://makan.media.kan.org.il/hls/live/2024680/2024680/master.m3u8",
			Logo:     "https://www.kan.org.il/images/logo_makan.jpg",
			Provider: r.Name(),
		},
		{
			ID:       "kan_educational",
			Name:     "כאן חינוכית",
			URL:      "https://kan23.media.kan.org.il/hls/live/2024691/2024691/master.m3u8",
			Logo:     "https://www.kan.org.il/media/1749/23tv.jpg",
			Provider: r.Name(),
		},
	}
}

// VODs scrapes the featured section of the provider lobby and eagerly
// resolves each item so playlist entries carry playable URLs. Items that
// fail to resolve are skipped.
func (r *ScrapeResolver) VODs(ctx context.Context, max int) []types.VOD {
	var vods []types.VOD

	body, err := r.fetcher.Text(ctx, kanLobbyURL, r.config.ContentCacheTTL)
	if err != nil {
		return vods
	}

	block := vodSectionRx.FindStringSubmatch(body)
	if block == nil {
		return vods
	}

	for _, item := range vodItemRx.FindAllStringSubmatch(block[1], max) {
		name, img, desc, href := item[1], item[2], item[3], item[4]

		page := href
		if !strings.HasPrefix(page, "http") {
			page = kanBaseURL + href
		}
		resolved, err := r.Resolve(ctx, page, r.config.PreferHTTP)
		if err != nil {
			continue
		}

		poster := img
		if !strings.HasPrefix(poster, "http") {
			poster = kanBaseURL + img
		}
		parts := strings.Split(page, "/")
		vods = append(vods, types.VOD{
			ID:          parts[len(parts)-1],
			Name:        strings.TrimSpace(name),
			URL:         resolved.URL,
			Poster:      poster,
			Provider:    r.Name(),
			Description: strings.TrimSpace(desc),
		})
	}
	return vods
}

// ClearCaches implements Resolver.
func (r *ScrapeResolver) ClearCaches() {
	r.contentCache.Clear()
	r.linkCache.Clear()
	logger.Info("cleared caches for %s", r.Name())
}
