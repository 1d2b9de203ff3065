package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"iltv-proxy/work/config"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/manifest"
	"iltv-proxy/work/playlist"
	"iltv-proxy/work/resolver"
)

const (
	playlistContentType = "application/vnd.apple.mpegurl"

	// defaultMaxVODs caps on-demand items per provider when a playlist is
	// requested with VOD entries included.
	defaultMaxVODs = 20
)

// Handlers carries the request-handling dependencies: the playlist assembler
// for listing and resolution, and one manifest proxy per proxied live
// channel.
type Handlers struct {
	config    *config.Config
	assembler *playlist.Assembler
	live      map[string]*manifest.Proxy
}

// New creates the handler set. live maps channel IDs to their manifest
// proxies; channels outside the map are served through the playlist only.
func New(cfg *config.Config, assembler *playlist.Assembler, live map[string]*manifest.Proxy) *Handlers {
	return &Handlers{
		config:    cfg,
		assembler: assembler,
		live:      live,
	}
}

// Register attaches every route to the router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/playlist.m3u8", h.Playlist).Methods("GET")
	r.HandleFunc("/live/{channel}.m3u8", h.Live).Methods("GET")
	r.HandleFunc("/segments/{path:.*}", h.Segment).Methods("GET")
	r.HandleFunc("/resolve", h.Resolve).Methods("GET")
	r.HandleFunc("/cache/clear", h.CacheClear).Methods("POST")
	r.HandleFunc("/{provider}/playlist.m3u8", h.Playlist).Methods("GET")
}

// Index serves a minimal HTML page linking the available playlists.
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("<html><body><h1>iltv-proxy</h1><ul>")
	b.WriteString(`<li><a href="/playlist.m3u8">combined playlist</a></li>`)
	for _, name := range h.assembler.Providers() {
		fmt.Fprintf(&b, `<li><a href="/%s/playlist.m3u8">%s playlist</a></li>`, name, name)
	}
	b.WriteString("</ul></body></html>")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(b.String()))
}

// Playlist serves the combined playlist, or a per-provider one when the
// route carries a provider segment. "?vods=1" includes on-demand entries.
func (h *Handlers) Playlist(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]

	maxVODs := 0
	if r.URL.Query().Get("vods") == "1" {
		maxVODs = defaultMaxVODs
	}

	body, err := h.assembler.Build(r.Context(), provider, maxVODs)
	if err != nil {
		logger.Warn("playlist build failed for provider %q: %v", provider, err)
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Write([]byte(body))
}

// Live serves the rewritten variant manifest for a proxied live channel.
// "?absolute=1" emits segment URLs fully qualified against the configured
// base URL instead of the relative form.
func (h *Handlers) Live(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	proxy, ok := h.live[channel]
	if !ok {
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}

	base := ""
	if r.URL.Query().Get("absolute") == "1" {
		base = strings.TrimSuffix(h.config.BaseURL, "/")
	}

	body, err := proxy.RewrittenVariant(r.Context(), base)
	if err != nil {
		logger.Error("live manifest for %s: %v", channel, err)
		if errors.Is(err, resolver.ErrNotFound) {
			http.Error(w, "stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, "upstream manifest unavailable", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", playlistContentType)
	w.Write([]byte(body))
}

// Segment streams one media segment, rebuilding the upstream auth prefix
// from the current manifests. The proxied channel is implied: segments only
// ever come from manifests this service rewrote.
func (h *Handlers) Segment(w http.ResponseWriter, r *http.Request) {
	segmentPath := mux.Vars(r)["path"]

	proxy := h.segmentProxy()
	if proxy == nil {
		http.Error(w, "no proxied channel", http.StatusNotFound)
		return
	}

	if err := proxy.StreamSegment(r.Context(), w, segmentPath); err != nil {
		if errors.Is(err, manifest.ErrStreamInterrupted) {
			// Headers and part of the body are already on the wire.
			logger.Debug("segment %s interrupted: %v", segmentPath, err)
			return
		}
		if errors.Is(err, resolver.ErrNotFound) {
			http.Error(w, "stream not found", http.StatusNotFound)
			return
		}
		http.Error(w, "upstream segment unavailable", http.StatusBadGateway)
	}
}

// Resolve resolves an arbitrary reference or page URL and reports the
// playable URL plus required headers as JSON.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("url")
	if ref == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	desc, err := h.assembler.Resolve(r.Context(), ref)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "stream not found"})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{
		"url":     desc.URL,
		"headers": desc.Headers,
	})
}

// CacheClear drops every resolver and manifest cache.
func (h *Handlers) CacheClear(w http.ResponseWriter, r *http.Request) {
	h.assembler.ClearCaches()
	for _, proxy := range h.live {
		proxy.ClearCache()
	}
	logger.Info("caches cleared on request")
	w.WriteHeader(http.StatusNoContent)
}

// segmentProxy picks the proxy serving the segment route. With a single
// proxied channel this is unambiguous.
func (h *Handlers) segmentProxy() *manifest.Proxy {
	for _, proxy := range h.live {
		return proxy
	}
	return nil
}
