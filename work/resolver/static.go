package resolver

import (
	"context"
	"strings"

	"iltv-proxy/work/cache"
	"iltv-proxy/work/config"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/metrics"
	"iltv-proxy/work/types"
	"iltv-proxy/work/utils"
)

// staticStream is one entry of the compiled-in Reshet 13 stream table.
type staticStream struct {
	link    string            // Upstream HLS URL
	referer string            // Referer header some player backends require
	extra   map[string]string // Provider attributes carried through to Extra
}

// StaticResolver serves Reshet 13 (Channel 13). All streams are known ahead
// of time; resolution is a pure table lookup plus protocol rewriting, with no
// network I/O. References look like "reshet13://13b".
type StaticResolver struct {
	config    *config.Config
	linkCache *cache.Store
}

const reshet13Scheme = "reshet13://"

var reshet13Streams = map[string]staticStream{
	"13b": {
		link:    "https://d18b0e6mopany4.cloudfront.net/out/v1/2f2bc414a3db4698a8e94b89eaf2da2a/index.m3u8",
		referer: "https://13tv.co.il/live/",
	},
	"13b2": {
		link:    "https://d2xg1g9o5vns8m.cloudfront.net/out/v1/0855d703f7d5436fae6a9c7ce8ca5075/index.m3u8",
		referer: "https://13tv.co.il/allshows/2010263/",
		extra:   map[string]string{"klt": "1_pjrmtdaf"},
	},
	"13c": {
		link:    "https://reshet.g-mana.live/media/4607e158-e4d4-4e18-9160-3dc3ea9bc677/mainManifest.m3u8",
		referer: "https://13tv.co.il/live/",
	},
	"bb": {
		link:    "https://d2lckchr9cxrss.cloudfront.net/out/v1/c73af7694cce4767888c08a7534b503c/index.m3u8",
		referer: "https://13tv.co.il/home/bb-livestream/",
		extra:   map[string]string{"klt": "1_6fr5xbw2", "brv": "videoId", "cst": "26"},
	},
	"13comedy": {
		link:    "https://d15ds134q59udk.cloudfront.net/out/v1/fbba879221d045598540ee783b140fe2/index.m3u8",
		referer: "https://13tv.co.il/allshows/2605018/",
		extra:   map[string]string{"klt": "adsadadas"},
	},
	"13nofesh": {
		link:    "https://d1yd8hohnldm33.cloudfront.net/out/v1/19dee23c2cc24f689bd4e1288661ee0c/index.m3u8",
		referer: "https://13tv.co.il/allshows/2395628/",
		extra:   map[string]string{"klt": "1_g7lqf2yg"},
	},
	"13reality": {
		link:    "https://d2dffl3588mvfk.cloudfront.net/out/v1/d8e15050ca4148aab0ee387a5e2eb46b/index.m3u8",
		referer: "https://13tv.co.il/allshows/2395629/",
		extra:   map[string]string{"klt": "1_khfzmmtx"},
	},
}

const reshet13Logo = "https://upload.wikimedia.org/wikipedia/he/thumb/2/2e/Reshet_13_logo.svg/1200px-Reshet_13_logo.svg.png"

var reshet13Names = map[string]string{
	"13b":       "Channel 13B",
	"13b2":      "13B2",
	"13c":       "Channel 13C",
	"bb":        "Big Brother",
	"13comedy":  "13 Comedy",
	"13nofesh":  "13 Nofesh",
	"13reality": "13 Reality",
}

var reshet13Logos = map[string]string{
	"bb":        "https://img.mako.co.il/2023/01/15/bigblogo_aa.png",
	"13comedy":  "https://img.mako.co.il/2020/08/04/COMEDY_LOGO0_a.jpg",
	"13nofesh":  "https://img.mako.co.il/2020/08/04/ADVENTURE_LOGO_a.jpg",
	"13reality": "https://img.mako.co.il/2020/08/04/REALITY_LOGO0_a.jpg",
}

// NewStaticResolver creates the Reshet 13 resolver with its own link cache.
func NewStaticResolver(cfg *config.Config) *StaticResolver {
	return &StaticResolver{
		config:    cfg,
		linkCache: cache.NewStore(),
	}
}

// Name implements Resolver.
func (r *StaticResolver) Name() string { return "reshet13" }

// Resolve looks the reference up in the stream table. Unknown identifiers and
// malformed references resolve to ErrNotFound, never a panic.
func (r *StaticResolver) Resolve(ctx context.Context, ref string, preferHTTP bool) (*types.StreamDescriptor, error) {
	metrics.ResolveAttempts.WithLabelValues(r.Name()).Inc()

	cacheKey := ref + "_" + utils.ProtocolKey(preferHTTP)
	if cached, ok := r.linkCache.Get(cacheKey, r.config.LinkCacheTTL); ok {
		metrics.CacheHits.WithLabelValues("link").Inc()
		return cached.(*types.StreamDescriptor), nil
	}

	if !strings.HasPrefix(ref, reshet13Scheme) {
		logger.Error("invalid reshet13 reference: %s", ref)
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	channelID := strings.TrimPrefix(ref, reshet13Scheme)
	stream, ok := reshet13Streams[channelID]
	if !ok {
		logger.Warn("unknown reshet13 channel id: %s", channelID)
		metrics.ResolveFailures.WithLabelValues(r.Name()).Inc()
		return nil, ErrNotFound
	}

	desc := &types.StreamDescriptor{
		URL:     utils.ApplyProtocolPreference(stream.link, preferHTTP),
		Headers: r.headers(channelID),
	}
	logger.Info("resolved %s to %s", ref, utils.LogURL(r.config, desc.URL))

	r.linkCache.Set(cacheKey, desc)
	return desc, nil
}

// headers returns the playback headers for a channel: always the user-agent,
// plus the channel's referer when the table carries one.
func (r *StaticResolver) headers(channelID string) map[string]string {
	h := map[string]string{"User-Agent": r.config.UserAgent}
	if stream, ok := reshet13Streams[channelID]; ok && stream.referer != "" {
		h["Referer"] = stream.referer
	}
	return h
}

// Channels implements Resolver with the main live lineup.
func (r *StaticResolver) Channels() []types.Channel {
	var channels []types.Channel
	for _, id := range []string{"13b", "13c", "bb"} {
		channels = append(channels, r.channel(id))
	}
	return channels
}

// VODs lists the on-demand side channels of the table.
func (r *StaticResolver) VODs(ctx context.Context, max int) []types.VOD {
	var vods []types.VOD
	for _, id := range []string{"13comedy", "13nofesh", "13reality", "13b2"} {
		if len(vods) >= max {
			break
		}
		ch := r.channel(id)
		vods = append(vods, types.VOD{
			ID:       ch.ID,
			Name:     ch.Name,
			URL:      ch.URL,
			Poster:   ch.Logo,
			Provider: ch.Provider,
			Extra:    ch.Extra,
		})
	}
	return vods
}

func (r *StaticResolver) channel(id string) types.Channel {
	logo := reshet13Logos[id]
	if logo == "" {
		logo = reshet13Logo
	}
	return types.Channel{
		ID:       id,
		Name:     reshet13Names[id],
		URL:      reshet13Scheme + id,
		Logo:     logo,
		Provider: r.Name(),
		Extra:    reshet13Streams[id].extra,
	}
}

// ClearCaches implements Resolver.
func (r *StaticResolver) ClearCaches() {
	r.linkCache.Clear()
	logger.Info("cleared caches for %s", r.Name())
}
