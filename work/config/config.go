package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"iltv-proxy/work/logger"
)

// Config holds all application configuration values for the resolver/proxy
// server. Provider credentials are sourced from the environment only and are
// never written back to the config file.
type Config struct {
	BaseURL         string        // Base URL clients use to reach this service (for absolute proxy links)
	ListenAddr      string        // Address the HTTP server binds to
	UserAgent       string        // User-Agent header sent on every upstream request
	PreferHTTP      bool          // Default protocol preference for resolved stream URLs
	LogLevel        string        // Minimum log level: DEBUG, INFO, WARN, ERROR
	ObfuscateUrls   bool          // Obfuscate upstream URLs in logs
	FetchTimeout    time.Duration // Timeout for upstream document/JSON fetches
	SegmentTimeout  time.Duration // Timeout for upstream segment fetches
	LinkCacheTTL    time.Duration // How long resolved stream URLs stay valid
	ContentCacheTTL time.Duration // How long raw fetched documents stay valid
	ManifestTTL     time.Duration // Seconds-scale TTL for the proxy's master manifest cache
	WorkerThreads   int           // Worker pool size for playlist resolution fan-out
	RequestsPerSec  int           // Per-host outbound request rate limit
	ChannelInclude  string        // Optional regex; when set, only matching channels appear in playlists
	ChannelExclude  string        // Optional regex; matching channels are dropped from playlists
	MakoUsername    string        // Optional Mako account login (env MAKO_USERNAME)
	MakoPassword    string        // Optional Mako account password (env MAKO_PASSWORD)
}

// ConfigFile represents the JSON file structure for unmarshaling configuration.
// Duration fields are strings (e.g. "30m") parsed into time.Duration values.
type ConfigFile struct {
	BaseURL         string `json:"baseURL"`
	ListenAddr      string `json:"listenAddr"`
	UserAgent       string `json:"userAgent"`
	PreferHTTP      *bool  `json:"preferHTTP"`
	LogLevel        string `json:"logLevel"`
	ObfuscateUrls   bool   `json:"obfuscateUrls"`
	FetchTimeout    string `json:"fetchTimeout"`
	SegmentTimeout  string `json:"segmentTimeout"`
	LinkCacheTTL    string `json:"linkCacheTTL"`
	ContentCacheTTL string `json:"contentCacheTTL"`
	ManifestTTL     string `json:"manifestTTL"`
	WorkerThreads   int    `json:"workerThreads"`
	RequestsPerSec  int    `json:"requestsPerSec"`
	ChannelInclude  string `json:"channelInclude"`
	ChannelExclude  string `json:"channelExclude"`
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

var (
	configCache *Config
	configMutex sync.RWMutex
)

// LoadConfig loads the configuration from file or returns the cached instance.
//
// Process:
//   - Uses double-checked locking to avoid redundant reloads.
//   - Attempts to load from `/settings/config.json`.
//   - Falls back to default config if file is missing or invalid.
//   - Pulls provider credentials from the environment.
//   - Runs validation to ensure safe defaults.
func LoadConfig() *Config {
	configMutex.RLock()
	if configCache != nil {
		defer configMutex.RUnlock()
		return configCache
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check under write lock
	if configCache != nil {
		return configCache
	}

	configPath := "/settings/config.json"
	config, err := loadFromFile(configPath)
	if err != nil {
		logger.Warn("Failed to load config from %s: %v", configPath, err)
		logger.Warn("Falling back to default configuration...")
		config = getDefaultConfig()
	}

	// Credentials come from the environment only
	config.MakoUsername = os.Getenv("MAKO_USERNAME")
	config.MakoPassword = os.Getenv("MAKO_PASSWORD")

	validateAndSetDefaults(config)
	configCache = config

	return config
}

// loadFromFile reads and parses the configuration from a JSON file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return convertFromFile(&configFile)
}

// convertFromFile converts a ConfigFile to Config,
// parsing duration strings into time.Duration.
func convertFromFile(cf *ConfigFile) (*Config, error) {
	config := &Config{
		BaseURL:        cf.BaseURL,
		ListenAddr:     cf.ListenAddr,
		UserAgent:      cf.UserAgent,
		PreferHTTP:     true,
		LogLevel:       cf.LogLevel,
		ObfuscateUrls:  cf.ObfuscateUrls,
		WorkerThreads:  cf.WorkerThreads,
		RequestsPerSec: cf.RequestsPerSec,
		ChannelInclude: cf.ChannelInclude,
		ChannelExclude: cf.ChannelExclude,
	}
	if cf.PreferHTTP != nil {
		config.PreferHTTP = *cf.PreferHTTP
	}

	// Parse duration fields; empty strings keep the zero value and are
	// filled in by validateAndSetDefaults.
	durations := []struct {
		src  string
		dst  *time.Duration
		name string
	}{
		{cf.FetchTimeout, &config.FetchTimeout, "fetchTimeout"},
		{cf.SegmentTimeout, &config.SegmentTimeout, "segmentTimeout"},
		{cf.LinkCacheTTL, &config.LinkCacheTTL, "linkCacheTTL"},
		{cf.ContentCacheTTL, &config.ContentCacheTTL, "contentCacheTTL"},
		{cf.ManifestTTL, &config.ManifestTTL, "manifestTTL"},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return config, nil
}

// getDefaultConfig returns a baseline configuration
// with sensible defaults when no file is present.
func getDefaultConfig() *Config {
	return &Config{
		BaseURL:         "http://localhost:5000",
		ListenAddr:      ":5000",
		UserAgent:       defaultUserAgent,
		PreferHTTP:      true,
		LogLevel:        "INFO",
		ObfuscateUrls:   false,
		FetchTimeout:    30 * time.Second,
		SegmentTimeout:  30 * time.Second,
		LinkCacheTTL:    time.Hour,
		ContentCacheTTL: 4 * time.Hour,
		ManifestTTL:     10 * time.Second,
		WorkerThreads:   8,
		RequestsPerSec:  10,
	}
}

// validateAndSetDefaults ensures all config values are valid,
// filling in defaults for missing/invalid ones.
func validateAndSetDefaults(config *Config) {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:5000"
	}
	if config.ListenAddr == "" {
		config.ListenAddr = ":5000"
	}
	if config.UserAgent == "" {
		config.UserAgent = defaultUserAgent
	}
	if config.LogLevel == "" {
		config.LogLevel = "INFO"
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	if config.SegmentTimeout <= 0 {
		config.SegmentTimeout = 30 * time.Second
	}
	if config.LinkCacheTTL <= 0 {
		config.LinkCacheTTL = time.Hour
	}
	if config.ContentCacheTTL <= 0 {
		config.ContentCacheTTL = 4 * time.Hour
	}
	if config.ManifestTTL <= 0 {
		config.ManifestTTL = 10 * time.Second
	}
	if config.WorkerThreads <= 0 {
		config.WorkerThreads = 8
	}
	if config.RequestsPerSec <= 0 {
		config.RequestsPerSec = 10
	}
}

// HasCredentials reports whether Mako account credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.MakoUsername != ""
}

// ClearConfigCache resets the configCache to nil.
// Forces a reload on the next LoadConfig() call.
func ClearConfigCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	configCache = nil
}

// ObfuscateURL masks sensitive parts of a URL for logging.
//
// Example:
//
//	Input:  "http://example.com/secret/stream.m3u8?ticket=abc"
//	Output: "http://example.com/***?***"
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return "***OBFUSCATED***"
	}
	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}
	return result
}
