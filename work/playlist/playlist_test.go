package playlist

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iltv-proxy/work/config"
	"iltv-proxy/work/resolver"
	"iltv-proxy/work/types"
)

// fakeResolver is a scripted Resolver for assembler tests.
type fakeResolver struct {
	name     string
	channels []types.Channel
	vods     []types.VOD
	streams  map[string]*types.StreamDescriptor
	cleared  bool
}

func (f *fakeResolver) Name() string { return f.name }

func (f *fakeResolver) Resolve(ctx context.Context, ref string, preferHTTP bool) (*types.StreamDescriptor, error) {
	if desc, ok := f.streams[ref]; ok {
		return desc, nil
	}
	return nil, resolver.ErrNotFound
}

func (f *fakeResolver) Channels() []types.Channel               { return f.channels }
func (f *fakeResolver) VODs(ctx context.Context, max int) []types.VOD { return f.vods }
func (f *fakeResolver) ClearCaches()                            { f.cleared = true }

func testConfig() *config.Config {
	return &config.Config{
		UserAgent:       "test-agent",
		PreferHTTP:      true,
		FetchTimeout:    5 * time.Second,
		LinkCacheTTL:    time.Hour,
		ContentCacheTTL: time.Hour,
		WorkerThreads:   4,
	}
}

func newPool(t *testing.T) *ants.Pool {
	t.Helper()
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	t.Cleanup(pool.Release)
	return pool
}

func testResolvers() (*fakeResolver, *fakeResolver) {
	alpha := &fakeResolver{
		name: "alpha",
		channels: []types.Channel{
			{ID: "a1", Name: "Alpha One", URL: "alpha://a1", Provider: "alpha"},
			{ID: "a2", Name: "Alpha Two", URL: "https://cdn.example/a2/master.m3u8", Provider: "alpha"},
		},
		streams: map[string]*types.StreamDescriptor{
			"alpha://a1": {
				URL:     "http://cdn.example/a1.m3u8",
				Headers: map[string]string{"User-Agent": "alpha-ua", "Referer": "http://alpha.example/"},
			},
		},
	}
	beta := &fakeResolver{
		name: "beta",
		channels: []types.Channel{
			{ID: "b1", Name: "Beta One", URL: "beta://b1", Provider: "beta"},
			{ID: "broken", Name: "Broken", URL: "beta://broken", Provider: "beta"},
		},
		streams: map[string]*types.StreamDescriptor{
			"beta://b1": {URL: "http://cdn.example/b1.m3u8", Headers: map[string]string{"User-Agent": "beta-ua"}},
		},
	}
	return alpha, beta
}

func TestBuildCombined(t *testing.T) {
	alpha, beta := testResolvers()
	a := NewAssembler(testConfig(), newPool(t), alpha, beta)

	out, err := a.Build(context.Background(), "", 0)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
	assert.Contains(t, out, `tvg-id="a1"`)
	assert.Contains(t, out, "http://cdn.example/a1.m3u8")
	assert.Contains(t, out, "#EXTVLCOPT:http-user-agent=alpha-ua")
	assert.Contains(t, out, "#EXTVLCOPT:http-referrer=http://alpha.example/")
	assert.Contains(t, out, "http://cdn.example/b1.m3u8")
	assert.NotContains(t, out, "Broken", "entries that fail to resolve are dropped")

	// Direct stream URLs pass through with the configured user agent.
	assert.Contains(t, out, "https://cdn.example/a2/master.m3u8")
	assert.Contains(t, out, "#EXTVLCOPT:http-user-agent=test-agent")
}

func TestBuildDeterministicOrder(t *testing.T) {
	alpha, beta := testResolvers()
	a := NewAssembler(testConfig(), newPool(t), alpha, beta)

	first, err := a.Build(context.Background(), "", 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := a.Build(context.Background(), "", 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	a1 := strings.Index(first, `tvg-id="a1"`)
	b1 := strings.Index(first, `tvg-id="b1"`)
	assert.Less(t, a1, b1, "output follows resolver registration order")
}

func TestBuildSingleProvider(t *testing.T) {
	alpha, beta := testResolvers()
	a := NewAssembler(testConfig(), newPool(t), alpha, beta)

	out, err := a.Build(context.Background(), "beta", 0)
	require.NoError(t, err)
	assert.Contains(t, out, `tvg-id="b1"`)
	assert.NotContains(t, out, `tvg-id="a1"`)
}

func TestBuildUnknownProvider(t *testing.T) {
	alpha, _ := testResolvers()
	a := NewAssembler(testConfig(), newPool(t), alpha)

	_, err := a.Build(context.Background(), "nosuch", 0)
	assert.Error(t, err)
}

func TestBuildIncludesVODs(t *testing.T) {
	alpha, _ := testResolvers()
	alpha.vods = []types.VOD{
		{ID: "v1", Name: "Alpha Movie", URL: "http://cdn.example/v1.m3u8", Provider: "alpha"},
	}
	a := NewAssembler(testConfig(), newPool(t), alpha)

	withVODs, err := a.Build(context.Background(), "alpha", 10)
	require.NoError(t, err)
	assert.Contains(t, withVODs, "Alpha Movie")
	assert.Contains(t, withVODs, `group-title="Alpha VOD"`)

	withoutVODs, err := a.Build(context.Background(), "alpha", 0)
	require.NoError(t, err)
	assert.NotContains(t, withoutVODs, "Alpha Movie")
}

func TestBuildExtraAttributes(t *testing.T) {
	alpha, _ := testResolvers()
	alpha.channels[0].Extra = map[string]string{"klt": "1_abc", "cst": "26"}
	a := NewAssembler(testConfig(), newPool(t), alpha)

	out, err := a.Build(context.Background(), "alpha", 0)
	require.NoError(t, err)
	assert.Contains(t, out, `cst="26" klt="1_abc"`, "extra attributes render sorted by key")
}

func TestBuildAppliesChannelFilter(t *testing.T) {
	cfg := testConfig()
	cfg.ChannelExclude = "Beta"
	alpha, beta := testResolvers()
	a := NewAssembler(cfg, newPool(t), alpha, beta)

	out, err := a.Build(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Contains(t, out, `tvg-id="a1"`)
	assert.NotContains(t, out, `tvg-id="b1"`)
}

func TestResolveDispatchOpaque(t *testing.T) {
	alpha, beta := testResolvers()
	a := NewAssembler(testConfig(), newPool(t), alpha, beta)

	desc, err := a.Resolve(context.Background(), "beta://b1")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example/b1.m3u8", desc.URL)

	_, err = a.Resolve(context.Background(), "gamma://x")
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestResolveDispatchPlainURL(t *testing.T) {
	alpha, beta := testResolvers()
	beta.streams["https://page.example/show"] = &types.StreamDescriptor{URL: "http://cdn.example/show.m3u8"}
	a := NewAssembler(testConfig(), newPool(t), alpha, beta)

	desc, err := a.Resolve(context.Background(), "https://page.example/show")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example/show.m3u8", desc.URL)

	_, err = a.Resolve(context.Background(), "https://page.example/unknown")
	assert.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestClearCaches(t *testing.T) {
	alpha, beta := testResolvers()
	a := NewAssembler(testConfig(), newPool(t), alpha, beta)

	a.ClearCaches()
	assert.True(t, alpha.cleared)
	assert.True(t, beta.cleared)
}

func TestProviders(t *testing.T) {
	alpha, beta := testResolvers()
	a := NewAssembler(testConfig(), newPool(t), alpha, beta)
	assert.Equal(t, []string{"alpha", "beta"}, a.Providers())
}
