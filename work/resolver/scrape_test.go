package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iltv-proxy/work/client"
)

const dailymotionFixture = `<html><script>
	player = dailymotion.createPlayer("player", {
		video: "x8abcd1"
	});
</script></html>`

func TestExtractDailymotion(t *testing.T) {
	got := extractDailymotion("https://www.kan.org.il/page", dailymotionFixture)
	assert.Equal(t, "https://www.dailymotion.com/embed/video/x8abcd1", got)

	assert.Empty(t, extractDailymotion("https://www.kan.org.il/page", "<html>no player here</html>"))
}

func TestExtractByPlayer(t *testing.T) {
	body := `<script>var cfg = { bynetURL: "https://cdn.example/live.m3u8?a=1&amp;b=2" };</script>`
	got := extractByPlayer("https://example.com/ByPlayer.aspx?id=1", body)
	assert.Equal(t, "https://cdn.example/live.m3u8?a=1&b=2", got, "escaped ampersands must be unescaped")

	redirector := `{"UrlRedirector":"https://cdn.example/redirected.m3u8?a=1\u0026b=2"}`
	got = extractByPlayer("https://example.com/ByPlayer.aspx?id=2", redirector)
	assert.Equal(t, "https://cdn.example/redirected.m3u8?a=1&b=2", got, "json-escaped ampersands must be unescaped")

	// The pattern only applies to player pages.
	assert.Empty(t, extractByPlayer("https://example.com/other", body))
}

func TestExtractInlineHLS(t *testing.T) {
	body := `config = { hls: "https://kan11.media.kan.org.il/hls/live/stream.m3u8" }`
	got := extractInlineHLS("https://kan11.media.kan.org.il/player", body)
	assert.Equal(t, "https://kan11.media.kan.org.il/hls/live/stream.m3u8", got)

	got = extractInlineHLS("https://makan.media.kan.org.il/player", body)
	assert.NotEmpty(t, got, "the makan media host is also recognized")

	assert.Empty(t, extractInlineHLS("https://other.example.com/player", body))
}

func TestExtractKaltura(t *testing.T) {
	body := `<script>window.kalturaIframePackageData = {"entryResult":{"meta":{"hlsStreamUrl":"https://cdn.kaltura.example/pkg/index.m3u8"}}};</script>`
	got := extractKaltura("https://cdnapisec.kaltura.com/embed", body)
	assert.Equal(t, "https://cdn.kaltura.example/pkg/index.m3u8", got)

	assert.Empty(t, extractKaltura("https://cdnapisec.kaltura.com/embed", "window.kalturaIframePackageData = {not json};"))
	assert.Empty(t, extractKaltura("https://example.com/embed", body))
}

func TestNormalizePageURL(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		preferHTTP bool
		want       string
	}{
		{"downgrade when preferred", "https://kan.org.il/page", true, "http://kan.org.il/page"},
		{"no downgrade otherwise", "https://kan.org.il/page", false, "https://kan.org.il/page"},
		{"concatenated urls keep the last", "https://player.example/redirect?to=https://cdn.example/live.m3u8", false, "https://cdn.example/live.m3u8"},
		{"duplicated hls segment collapsed", "https://cdn.example/HLS/HLS/live.m3u8", false, "https://cdn.example/HLS/live.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePageURL(tt.in, tt.preferHTTP))
		})
	}
}

func TestScrapeExtractionOrder(t *testing.T) {
	// A player page carrying both a dailymotion embed and a byplayer URL
	// must resolve through the dailymotion pattern.
	body := dailymotionFixture + `<script>var cfg = { bynetURL: "https://cdn.example/live.m3u8" };</script>`
	r := NewScrapeResolver(testConfig(), client.NewHeaderSettingClient(testConfig()))

	var resolved string
	for _, ex := range r.extractors {
		if resolved = ex.fn("https://example.com/ByPlayer.aspx", body); resolved != "" {
			assert.Equal(t, "dailymotion", ex.name)
			break
		}
	}
	assert.Equal(t, "https://www.dailymotion.com/embed/video/x8abcd1", resolved)
}

func TestScrapeResolveEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dailymotionFixture))
	}))
	defer srv.Close()

	cfg := testConfig()
	r := NewScrapeResolver(cfg, client.NewHeaderSettingClient(cfg))

	desc, err := r.Resolve(context.Background(), srv.URL+"/item/123", true)
	require.NoError(t, err)
	assert.Equal(t, "http://www.dailymotion.com/embed/video/x8abcd1", desc.URL)
	assert.Equal(t, cfg.UserAgent, desc.Headers["User-Agent"])
}

func TestScrapeResolveNoPatternMatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>nothing to extract</html>"))
	}))
	defer srv.Close()

	cfg := testConfig()
	r := NewScrapeResolver(cfg, client.NewHeaderSettingClient(cfg))

	_, err := r.Resolve(context.Background(), srv.URL+"/item/123", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScrapeResolveUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testConfig()
	r := NewScrapeResolver(cfg, client.NewHeaderSettingClient(cfg))

	_, err := r.Resolve(context.Background(), srv.URL+"/item/123", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScrapeResolveCached(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(dailymotionFixture))
	}))
	defer srv.Close()

	cfg := testConfig()
	r := NewScrapeResolver(cfg, client.NewHeaderSettingClient(cfg))

	_, err := r.Resolve(context.Background(), srv.URL+"/item/123", true)
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), srv.URL+"/item/123", true)
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "the second resolution must be served from cache")
}

func TestScrapeChannels(t *testing.T) {
	r := NewScrapeResolver(testConfig(), client.NewHeaderSettingClient(testConfig()))

	channels := r.Channels()
	require.Len(t, channels, 3)
	for _, ch := range channels {
		assert.Equal(t, "kan", ch.Provider)
		assert.Contains(t, ch.URL, ".m3u8", "live lineup streams directly")
	}
}
