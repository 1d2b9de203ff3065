package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"iltv-proxy/work/config"
)

func TestApplyProtocolPreference(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		preferHTTP bool
		want       string
	}{
		{"https downgraded when http preferred", "https://host/stream.m3u8", true, "http://host/stream.m3u8"},
		{"https kept when https preferred", "https://host/stream.m3u8", false, "https://host/stream.m3u8"},
		{"http never upgraded", "http://host/stream.m3u8", false, "http://host/stream.m3u8"},
		{"http kept when http preferred", "http://host/stream.m3u8", true, "http://host/stream.m3u8"},
		{"scheme-relative gets http", "//host/stream.m3u8", true, "http://host/stream.m3u8"},
		{"scheme-relative gets https", "//host/stream.m3u8", false, "https://host/stream.m3u8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ApplyProtocolPreference(tt.url, tt.preferHTTP))
		})
	}
}

func TestProtocolKey(t *testing.T) {
	assert.Equal(t, "http", ProtocolKey(true))
	assert.Equal(t, "https", ProtocolKey(false))
}

func TestLogURL(t *testing.T) {
	cfg := &config.Config{ObfuscateUrls: false}
	assert.Equal(t, "http://host/path?ticket=x", LogURL(cfg, "http://host/path?ticket=x"))

	cfg.ObfuscateUrls = true
	assert.Equal(t, "http://host/***?***", LogURL(cfg, "http://host/path?ticket=x"))
}
