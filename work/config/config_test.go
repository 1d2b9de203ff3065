package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertFromFile(t *testing.T) {
	preferHTTPS := false
	cf := &ConfigFile{
		BaseURL:         "http://proxy.local:5000",
		ListenAddr:      ":5000",
		LogLevel:        "DEBUG",
		PreferHTTP:      &preferHTTPS,
		FetchTimeout:    "45s",
		LinkCacheTTL:    "30m",
		ContentCacheTTL: "2h",
		ManifestTTL:     "5s",
		WorkerThreads:   16,
	}

	cfg, err := convertFromFile(cf)
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local:5000", cfg.BaseURL)
	assert.False(t, cfg.PreferHTTP)
	assert.Equal(t, 45*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 30*time.Minute, cfg.LinkCacheTTL)
	assert.Equal(t, 2*time.Hour, cfg.ContentCacheTTL)
	assert.Equal(t, 5*time.Second, cfg.ManifestTTL)
	assert.Equal(t, 16, cfg.WorkerThreads)
}

func TestConvertFromFileDefaultsPreferHTTP(t *testing.T) {
	cfg, err := convertFromFile(&ConfigFile{})
	require.NoError(t, err)
	assert.True(t, cfg.PreferHTTP, "absent preference defaults to http")
}

func TestConvertFromFileBadDuration(t *testing.T) {
	_, err := convertFromFile(&ConfigFile{FetchTimeout: "not-a-duration"})
	assert.Error(t, err)
}

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{}
	validateAndSetDefaults(cfg)

	assert.Equal(t, ":5000", cfg.ListenAddr)
	assert.NotEmpty(t, cfg.UserAgent)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Hour, cfg.LinkCacheTTL)
	assert.Equal(t, 4*time.Hour, cfg.ContentCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.ManifestTTL)
	assert.Greater(t, cfg.WorkerThreads, 0)
	assert.Greater(t, cfg.RequestsPerSec, 0)
}

func TestValidateKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		ListenAddr:   ":8080",
		LogLevel:     "ERROR",
		FetchTimeout: time.Second,
	}
	validateAndSetDefaults(cfg)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "ERROR", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.FetchTimeout)
}

func TestHasCredentials(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.HasCredentials())

	cfg.MakoUsername = "user@example.com"
	assert.True(t, cfg.HasCredentials())
}

func TestObfuscateURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"http://example.com", "http://example.com"},
		{"http://example.com/secret/stream.m3u8", "http://example.com/***"},
		{"http://example.com/secret/stream.m3u8?ticket=abc", "http://example.com/***?***"},
		{"https://example.com/?t=1", "https://example.com?***"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObfuscateURL(tt.in), "input %q", tt.in)
	}
}
