package resolver

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/google/uuid"

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
	makoBaseURL       = "https://www.mako.co.il"
	makoPlatformParam = "platform=responsive"
	makoEntitlements  = "https://mass.mako.co.il/ClicksStatistics/entitlementsServicesV2.jsp"
	makoAppID         = "6gkr2ks9-4610-392g-f4s8-d743gg4623k2"
)

// makoCDNs is the ranked CDN preference: the primary is tried first, the
// fallback only when the primary yields no ticket.
var makoCDNs = []string{"AKAMAI", "AWS"}

// TicketResolver serves Keshet (Mako). Resolution negotiates a short-lived
// entitlement ticket against the provider's entitlement service for one of
// the CDN candidates listed by the media API, and appends the ticket to the
// candidate URL. Tickets are never cached on their own; the final URL that
// embeds one lives in the link cache until TTL expiry, after which the whole
// negotiation reruns.
type TicketResolver struct {
	config          *config.Config
	fetcher         *fetch.Fetcher
	contentCache    *cache.Store
	linkCache       *cache.Store
	baseURL         string
	entitlementsURL string
}

// flexString decodes JSON fields the provider serves inconsistently as
// either strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// mediaItem is one CDN-specific stream candidate from the media listing.
type mediaItem struct {
	CDN string `json:"cdn"`
	URL string `json:"url"`
}

// ticketResponse is the entitlement service's answer to a ticket or login
// request. The case code drives the flow: "1" carries a usable ticket, "4"
// demands an authenticated session first.
type ticketResponse struct {
	CaseID  flexString `json:"caseId"`
	Tickets []struct {
		Ticket string `json:"ticket"`
	} `json:"tickets"`
}

// NewTicketResolver creates the Keshet resolver with its own caches.
func NewTicketResolver(cfg *config.Config, httpClient *client.HeaderSettingClient) *TicketResolver {
	contentCache := cache.NewStore()
	return &TicketResolver{
		config:          cfg,
		fetcher:         fetch.New(cfg, httpClient, contentCache),
		contentCache:    contentCache,
		linkCache:       cache.NewStore(),
		baseURL:         makoBaseURL,
		entitlementsURL: makoEntitlements,
	}
}

// Name implements Resolver.
func (r *TicketResolver) Name() string { return "keshet" }

// Resolve turns a Mako page URL into a ticketed stream URL. The page's
// parameter document names the content item and channel group; everything
// downstream of that runs through ResolveParams.
func (r *TicketResolver) Resolve(ctx context.Context, pageURL string, preferHTTP bool) (*types.StreamDescriptor, error) {
	metrics.ResolveAttempts.WithLabelValues(r.Name()).Inc()

	cacheKey := pageURL + "_" + utils.ProtocolKey(preferHTTP)
	if cached, ok := r.linkCache.Get(cacheKey, r.config.LinkCacheTTL); ok {
		metrics.CacheHits.WithLabelValues("link").Inc()
		return cached.(*types.StreamDescriptor), nil
	}

	paramsURL := pageURL + "?" + makoPlatformParam
	if strings.Contains(pageURL, "?") {
		paramsURL = pageURL + "&" + makoPlatformParam
	}

	var raw json.RawMessage
	if err := r.fetcher.JSON(ctx, paramsURL, &raw); err != nil {
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	var params struct {
		VOD struct {
			ChannelID flexString `json:"channelId"`
			ItemVcmID flexString `json:"itemVcmId"`
		} `json:"vod"`
	}
	if err := json.Unmarshal(fetch.UnwrapRoot(raw), &params); err != nil {
		logger.Error("parsing parameter document from %s: %v", utils.LogURL(r.config, paramsURL), err)
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	vcmid := string(params.VOD.ItemVcmID)
	channelID := string(params.VOD.ChannelID)
	if vcmid == "" || channelID == "" {
		logger.Error("parameter document missing vcmid/videoChannelId for %s", utils.LogURL(r.config, pageURL))
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	desc, err := r.ResolveParams(ctx, "vcmid="+vcmid+"&videoChannelId="+channelID, preferHTTP)
	if err != nil {
		return nil, err
	}

	r.linkCache.Set(cacheKey, desc)
	return desc, nil
}

// ResolveParams resolves from pre-parsed stream parameters of the form
// "vcmid=...&videoChannelId=...". This is the resume format used when the
// identifiers are already known and the page fetch can be skipped.
func (r *TicketResolver) ResolveParams(ctx context.Context, urlParams string, preferHTTP bool) (*types.StreamDescriptor, error) {
	vcmid, channelID := extractStreamParams(urlParams)
	if vcmid == "" || channelID == "" {
		logger.Error("could not extract vcmid or videoChannelId from %q", urlParams)
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	ajaxURL := r.baseURL + "/AjaxPage?jspName=playlist.jsp" +
		"&vcmid=" + vcmid +
		"&videoChannelId=" + channelID +
		"&galleryChannelId=" + vcmid +
		"&isGallery=false&consumer=web_html5&encryption=no"

	var listing struct {
		Media []mediaItem `json:"media"`
	}
	if err := r.fetcher.JSON(ctx, ajaxURL, &listing); err != nil {
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}
	if len(listing.Media) == 0 {
		logger.Error("no media candidates in listing for vcmid=%s", vcmid)
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}
	logger.Debug("media listing holds %d candidates for vcmid=%s", len(listing.Media), vcmid)

	for _, cdn := range makoCDNs {
		link := r.linkForCDN(ctx, listing.Media, cdn, preferHTTP)
		if link == "" {
			logger.Debug("no link via CDN %s, trying next", cdn)
			continue
		}
		logger.Info("resolved stream via CDN %s: %s", cdn, utils.LogURL(r.config, link))
		return &types.StreamDescriptor{
			URL:     link,
			Headers: map[string]string{"User-Agent": r.config.UserAgent},
		}, nil
	}

	logger.Error("no CDN yielded a ticket for vcmid=%s", vcmid)
	metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
	return nil, ErrNotFound
}

// extractStreamParams pulls vcmid and videoChannelId out of a raw parameter
// string. Query parsing is tried first; if it yields nothing the identifiers
// are cut out by literal marker search, since some callers hand over strings
// that are not well-formed queries.
func extractStreamParams(urlParams string) (vcmid, channelID string) {
	if values, err := url.ParseQuery(urlParams); err == nil {
		vcmid = values.Get("vcmid")
		channelID = values.Get("videoChannelId")
	}
	if vcmid == "" {
		if start := strings.Index(urlParams, "vcmid="); start >= 0 {
			if end := strings.Index(urlParams, "&videoChannelId="); end > start {
				vcmid = urlParams[start+len("vcmid="):end]
			}
		}
	}
	if channelID == "" {
		if start := strings.Index(urlParams, "&videoChannelId="); start >= 0 {
			channelID = urlParams[start+len("&videoChannelId="):]
		}
	}
	return vcmid, channelID
}

// linkForCDN attempts to produce a playable, ticketed link for one CDN.
// Returns "" when the CDN has no candidate or the ticket negotiation fails,
// which sends the caller on to the next CDN in the ranking.
func (r *TicketResolver) linkForCDN(ctx context.Context, media []mediaItem, cdn string, preferHTTP bool) string {
	var streamURL string
	for _, item := range media {
		if strings.EqualFold(item.CDN, cdn) {
			streamURL = item.URL
			// The primary CDN embeds tracking parameters that must not
			// reach the ticket request.
			if strings.EqualFold(cdn, "AKAMAI") {
				if pos := strings.Index(streamURL, "?"); pos > 0 {
					streamURL = streamURL[:pos]
				}
			}
			break
		}
	}
	if streamURL == "" {
		logger.Warn("no candidate URL for CDN %s", cdn)
		return ""
	}

	ticket := r.ticket(ctx, streamURL, cdn)
	if ticket == "" {
		logger.Error("failed to get ticket for %s", utils.LogURL(r.config, streamURL))
		return ""
	}

	streamURL = utils.ApplyProtocolPreference(streamURL, preferHTTP)

	if strings.Contains(streamURL, "?") {
		return streamURL + "&" + ticket
	}
	return streamURL + "?" + ticket
}

// ticket requests a time-limited access ticket from the entitlement service.
// A case "4" answer with configured credentials triggers exactly one
// login-and-retry sequence; every other failure is final for this CDN.
func (r *TicketResolver) ticket(ctx context.Context, streamURL, cdn string) string {
	deviceID := newDeviceID()

	var ticketURL string
	if r.config.HasCredentials() {
		ticketURL = r.entitlementsURL + "?et=gt&na=2.0&da=" + makoAppID +
			"&du=" + deviceID + "&dv=&rv=" + cdn + "&lp=" + streamURL
	} else {
		ticketURL = r.entitlementsURL + "?et=gt&lp=" + streamURL + "&rv=" + cdn
	}

	var resp ticketResponse
	if err := r.fetcher.JSON(ctx, ticketURL, &resp); err != nil {
		return ""
	}
	metrics.TicketRequests.WithLabelValues(string(resp.CaseID)).Inc()

	switch string(resp.CaseID) {
	case "1":
		return decodeTicket(resp)
	case "4":
		if !r.config.HasCredentials() {
			return ""
		}
		r.login(ctx, deviceID)

		var retry ticketResponse
		if err := r.fetcher.JSON(ctx, ticketURL, &retry); err != nil {
			return ""
		}
		metrics.TicketRequests.WithLabelValues(string(retry.CaseID)).Inc()
		if string(retry.CaseID) == "1" {
			return decodeTicket(retry)
		}
	}
	return ""
}

// decodeTicket URL-decodes the first ticket of an entitlement response.
func decodeTicket(resp ticketResponse) string {
	if len(resp.Tickets) == 0 {
		return ""
	}
	decoded, err := url.QueryUnescape(resp.Tickets[0].Ticket)
	if err != nil {
		logger.Error("ticket decode failed: %v", err)
		return ""
	}
	return decoded
}

// login submits the configured credentials against the entitlement endpoint
// and validates the session. Failures are logged inside the fetcher; the
// subsequent ticket retry reveals whether the login took.
func (r *TicketResolver) login(ctx context.Context, deviceID string) {
	loginURL := r.entitlementsURL + "?eu=" + url.QueryEscape(r.config.MakoUsername) +
		"&da=" + makoAppID +
		"&dwp=" + url.QueryEscape(r.config.MakoPassword) +
		"&et=ln&du=" + deviceID
	var resp json.RawMessage
	_ = r.fetcher.JSON(ctx, loginURL, &resp)

	validateURL := r.entitlementsURL + "?da=" + makoAppID + "&et=gds&du=" + deviceID
	_ = r.fetcher.JSON(ctx, validateURL, &resp)
}

// newDeviceID generates the per-call device identifier the entitlement
// service scopes tickets to. Uniqueness matters; cryptographic strength
// does not.
func newDeviceID() string {
	return "W" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// Channels implements Resolver. The live channel resolves through the same
// ticket negotiation as VOD items.
func (r *TicketResolver) Channels() []types.Channel {
	logo := "https://img.mako.co.il/2017/06/21/keshet_2017_logo_a.jpg"
	return []types.Channel{
		{
			ID:       "keshet12",
			Name:     "קשת 12",
			URL:      r.baseURL + "/mako-vod-live-tv/VOD-6540b8dcb64fd31006.htm",
			Logo:     logo,
			Provider: r.Name(),
		},
		{
			ID:       "traitors",
			Name:     "The Traitors",
			URL:      r.baseURL + "/mako-vod-keshet/the_traitors-s1/VOD-c901dc765866691027.htm",
			Logo:     logo,
			Provider: r.Name(),
		},
	}
}

// VODs implements Resolver. The provider's on-demand catalog requires a
// per-show listing walk that is not wired up yet.
func (r *TicketResolver) VODs(ctx context.Context, max int) []types.VOD {
	return nil
}

// LiveChannelURL returns the page URL of the main live channel, used by the
// proxy surface to bootstrap manifest rewriting.
func (r *TicketResolver) LiveChannelURL() string {
	return r.baseURL + "/mako-vod-live-tv/VOD-6540b8dcb64fd31006.htm"
}

// ClearCaches implements Resolver.
func (r *TicketResolver) ClearCaches() {
	r.contentCache.Clear()
	r.linkCache.Clear()
	logger.Info("cleared caches for %s", r.Name())
}
