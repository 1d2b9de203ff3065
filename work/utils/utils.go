package utils

import (
	"strings"

	"iltv-proxy/work/config"
)

// LogURL returns either the original URL or an obfuscated version for logging
func LogURL(cfg *config.Config, url string) string {
	if cfg.ObfuscateUrls {
		return config.ObfuscateURL(url)
	}
	return url
}

// ApplyProtocolPreference rewrites a stream URL's scheme according to the
// caller's preference. Scheme-relative URLs get an explicit scheme; https is
// downgraded to http only when HTTP is preferred, and never upgraded.
func ApplyProtocolPreference(url string, preferHTTP bool) string {
	if strings.HasPrefix(url, "//") {
		if preferHTTP {
			return "http:" + url
		}
		return "https:" + url
	}
	if preferHTTP && strings.HasPrefix(url, "https://") {
		return "http://" + strings.TrimPrefix(url, "https://")
	}
	return url
}

// ProtocolKey names a protocol preference for use in cache keys.
func ProtocolKey(preferHTTP bool) string {
	if preferHTTP {
		return "http"
	}
	return "https"
}
