package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"iltv-proxy/work/client"
	"iltv-proxy/work/config"
	"iltv-proxy/work/handlers"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/manifest"
	"iltv-proxy/work/middleware"
	"iltv-proxy/work/playlist"
	"iltv-proxy/work/resolver"
)

var (
	Version = "v0.1.0" // default version
)

func main() {

	// load our config
	cfg := config.LoadConfig()
	logger.SetLogLevel(cfg.LogLevel)

	// shared HTTP client with per-host rate limiting
	httpClient := client.NewHeaderSettingClient(cfg)

	// worker pool for playlist fan-out
	workerPool, err := ants.NewPool(cfg.WorkerThreads, ants.WithPreAlloc(true))
	if err != nil {
		log.Fatalf("Failed to create worker pool: %v", err)
	}
	defer workerPool.Release()

	// one resolver per provider
	kan := resolver.NewScrapeResolver(cfg, httpClient)
	keshet := resolver.NewTicketResolver(cfg, httpClient)
	reshet := resolver.NewStaticResolver(cfg)

	assembler := playlist.NewAssembler(cfg, workerPool, kan, keshet, reshet)

	// the manifest proxy re-resolves the live channel per fetch; the
	// resolver's link cache keeps that to one ticket per cache window
	liveProxy := manifest.NewProxy(cfg, httpClient, func(ctx context.Context) (string, error) {
		desc, err := keshet.Resolve(ctx, keshet.LiveChannelURL(), cfg.PreferHTTP)
		if err != nil {
			return "", err
		}
		return desc.URL, nil
	})

	// Setup HTTP routes
	router := mux.NewRouter()
	router.Use(middleware.Gzip)

	h := handlers.New(cfg, assembler, map[string]*manifest.Proxy{"keshet12": liveProxy})
	h.Register(router)

	// Metrics handler
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// show info
	logger.Info("Starting ILTV Proxy %s", Version)
	logger.Info("Server configuration:")
	logger.Info("  - Listen Address: %s", cfg.ListenAddr)
	logger.Info("  - Base URL: %s", cfg.BaseURL)
	logger.Info("  - Worker Threads: %d", cfg.WorkerThreads)
	logger.Info("  - Prefer HTTP: %v", cfg.PreferHTTP)
	logger.Info("  - Link Cache TTL: %s", cfg.LinkCacheTTL)
	logger.Info("  - Content Cache TTL: %s", cfg.ContentCacheTTL)
	logger.Info("  - Manifest TTL: %s", cfg.ManifestTTL)
	logger.Info("  - Mako Credentials: %v", cfg.HasCredentials())
	logger.Info("  - URL Obfuscation: %v", cfg.ObfuscateUrls)

	// fire us up
	if err := http.ListenAndServe(cfg.ListenAddr, router); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

}
