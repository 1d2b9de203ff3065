package playlist

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"iltv-proxy/work/config"
	"iltv-proxy/work/filter"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/resolver"
	"iltv-proxy/work/types"
)

// Assembler builds extended-M3U playlists from the registered resolvers.
// Resolver order is the registration order and carries through to the output,
// so two builds over unchanged upstreams produce identical playlists.
type Assembler struct {
	config    *config.Config
	pool      *ants.Pool
	filter    *filter.ChannelFilter
	resolvers []resolver.Resolver
}

// NewAssembler creates an Assembler over the given resolvers. The worker pool
// bounds concurrent upstream resolutions during a build.
func NewAssembler(cfg *config.Config, pool *ants.Pool, resolvers ...resolver.Resolver) *Assembler {
	return &Assembler{
		config:    cfg,
		pool:      pool,
		filter:    filter.FromConfig(cfg),
		resolvers: resolvers,
	}
}

// Providers lists the registered resolver names in registration order.
func (a *Assembler) Providers() []string {
	names := make([]string, 0, len(a.resolvers))
	for _, r := range a.resolvers {
		names = append(names, r.Name())
	}
	return names
}

// Build assembles the playlist. With provider empty every resolver
// contributes; otherwise only the named one. maxVODs caps on-demand items
// per provider; zero skips VOD listings entirely. Channels whose resolution
// fails are dropped from the output, never rendered as broken entries.
func (a *Assembler) Build(ctx context.Context, provider string, maxVODs int) (string, error) {
	type item struct {
		source  resolver.Resolver
		channel types.Channel
	}

	var items []item
	matched := provider == ""
	for _, r := range a.resolvers {
		if provider != "" && r.Name() != provider {
			continue
		}
		matched = true
		for _, ch := range r.Channels() {
			if !a.filter.Allow(ch) {
				continue
			}
			items = append(items, item{source: r, channel: ch})
		}
		if maxVODs > 0 {
			for _, v := range r.VODs(ctx, maxVODs) {
				ch := v.AsChannel()
				if !a.filter.Allow(ch) {
					continue
				}
				items = append(items, item{source: r, channel: ch})
			}
		}
	}
	if !matched {
		return "", fmt.Errorf("unknown provider %q", provider)
	}

	descriptors := make([]*types.StreamDescriptor, len(items))
	var wg sync.WaitGroup
	for i := range items {
		i := i
		wg.Add(1)
		task := func() {
			defer wg.Done()
			descriptors[i] = a.resolveChannel(ctx, items[i].source, items[i].channel)
		}
		if err := a.pool.Submit(task); err != nil {
			// Pool shut down or saturated beyond its queue; do the work
			// on the calling goroutine instead of dropping the entry.
			task()
		}
	}
	wg.Wait()

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i, it := range items {
		if descriptors[i] == nil {
			continue
		}
		writeEntry(&b, it.channel, descriptors[i])
	}
	return b.String(), nil
}

// Resolve dispatches a single reference to the resolver that owns it. An
// opaque reference goes to the resolver whose name matches its scheme; plain
// URLs are tried against every resolver in order.
func (a *Assembler) Resolve(ctx context.Context, ref string) (*types.StreamDescriptor, error) {
	if types.IsOpaqueRef(ref) {
		scheme := ref[:strings.Index(ref, "://")]
		for _, r := range a.resolvers {
			if r.Name() == scheme {
				return r.Resolve(ctx, ref, a.config.PreferHTTP)
			}
		}
		return nil, resolver.ErrNotFound
	}

	var lastErr error = resolver.ErrNotFound
	for _, r := range a.resolvers {
		desc, err := r.Resolve(ctx, ref, a.config.PreferHTTP)
		if err == nil {
			return desc, nil
		}
		if !errors.Is(err, resolver.ErrNotFound) {
			lastErr = err
		}
	}
	return nil, lastErr
}

// ClearCaches drops every resolver's caches.
func (a *Assembler) ClearCaches() {
	for _, r := range a.resolvers {
		r.ClearCaches()
	}
}

// resolveChannel resolves one channel to a playable descriptor, or nil when
// resolution fails. Direct stream URLs pass through without an upstream
// round trip.
func (a *Assembler) resolveChannel(ctx context.Context, r resolver.Resolver, ch types.Channel) *types.StreamDescriptor {
	if isDirectStream(ch.URL) {
		return &types.StreamDescriptor{
			URL:     ch.URL,
			Headers: map[string]string{"User-Agent": a.config.UserAgent},
		}
	}

	desc, err := r.Resolve(ctx, ch.URL, a.config.PreferHTTP)
	if err != nil {
		logger.Warn("skipping %s/%s: %v", ch.Provider, ch.ID, err)
		return nil
	}
	return desc
}

// isDirectStream reports whether a channel URL is already playable and needs
// no resolution pass.
func isDirectStream(url string) bool {
	if types.IsOpaqueRef(url) {
		return false
	}
	path := url
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".m3u8")
}

// writeEntry renders a single playlist entry: the EXTINF line with its
// attributes, player header options, then the stream URL.
func writeEntry(b *strings.Builder, ch types.Channel, desc *types.StreamDescriptor) {
	group := ch.GroupTitle
	if group == "" {
		group = ch.Provider
	}

	b.WriteString(fmt.Sprintf("#EXTINF:-1 tvg-id=%q tvg-logo=%q group-title=%q", ch.ID, ch.Logo, group))
	for _, k := range sortedKeys(ch.Extra) {
		b.WriteString(fmt.Sprintf(" %s=%q", k, ch.Extra[k]))
	}
	b.WriteString("," + ch.Name + "\n")

	if ua, ok := desc.Headers["User-Agent"]; ok {
		b.WriteString("#EXTVLCOPT:http-user-agent=" + ua + "\n")
	}
	if ref, ok := desc.Headers["Referer"]; ok {
		b.WriteString("#EXTVLCOPT:http-referrer=" + ref + "\n")
	}
	b.WriteString(desc.URL + "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
