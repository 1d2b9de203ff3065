package filter

import (
	"strings"

	"github.com/grafana/regexp"

	"iltv-proxy/work/config"
	"iltv-proxy/work/logger"
	"iltv-proxy/work/types"
)

// ChannelFilter applies the configured include and exclude patterns to
// playlist channels. Patterns match case-insensitively against the channel
// ID, name and group title. A nil or empty filter passes everything.
type ChannelFilter struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// FromConfig compiles the configured patterns. Invalid patterns are logged
// and treated as absent rather than failing startup.
func FromConfig(cfg *config.Config) *ChannelFilter {
	f := &ChannelFilter{}
	if cfg.ChannelInclude != "" {
		compiled, err := regexp.Compile("(?i)" + cfg.ChannelInclude)
		if err != nil {
			logger.Error("invalid channelInclude pattern %q: %v", cfg.ChannelInclude, err)
		} else {
			f.include = compiled
		}
	}
	if cfg.ChannelExclude != "" {
		compiled, err := regexp.Compile("(?i)" + cfg.ChannelExclude)
		if err != nil {
			logger.Error("invalid channelExclude pattern %q: %v", cfg.ChannelExclude, err)
		} else {
			f.exclude = compiled
		}
	}
	return f
}

// Allow reports whether a channel passes the filter. Include patterns are
// checked first; a channel failing the include check never reaches the
// exclude check.
func (f *ChannelFilter) Allow(ch types.Channel) bool {
	if f == nil {
		return true
	}

	subject := strings.Join([]string{ch.ID, ch.Name, ch.GroupTitle}, " ")
	if f.include != nil && !f.include.MatchString(subject) {
		logger.Debug("filtered out %s/%s (no include match)", ch.Provider, ch.ID)
		return false
	}
	if f.exclude != nil && f.exclude.MatchString(subject) {
		logger.Debug("filtered out %s/%s (exclude match)", ch.Provider, ch.ID)
		return false
	}
	return true
}
