package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"iltv-proxy/work/config"
	"iltv-proxy/work/types"
)

func channel(id, name, group string) types.Channel {
	return types.Channel{ID: id, Name: name, GroupTitle: group, Provider: "test"}
}

func TestEmptyFilterPassesEverything(t *testing.T) {
	f := FromConfig(&config.Config{})
	assert.True(t, f.Allow(channel("kan11", "Kan 11", "kan")))
}

func TestNilFilterPassesEverything(t *testing.T) {
	var f *ChannelFilter
	assert.True(t, f.Allow(channel("kan11", "Kan 11", "kan")))
}

func TestIncludeFilter(t *testing.T) {
	f := FromConfig(&config.Config{ChannelInclude: "kan|keshet"})

	assert.True(t, f.Allow(channel("kan11", "Kan 11", "kan")))
	assert.True(t, f.Allow(channel("keshet12", "Keshet 12", "keshet")))
	assert.False(t, f.Allow(channel("13b", "Channel 13B", "reshet13")))
}

func TestExcludeFilter(t *testing.T) {
	f := FromConfig(&config.Config{ChannelExclude: "VOD"})

	assert.True(t, f.Allow(channel("kan11", "Kan 11", "kan")))
	assert.False(t, f.Allow(channel("13comedy", "13 Comedy", "Reshet13 VOD")))
}

func TestIncludeBeforeExclude(t *testing.T) {
	f := FromConfig(&config.Config{ChannelInclude: "kan", ChannelExclude: "educational"})

	assert.True(t, f.Allow(channel("kan11", "Kan 11", "kan")))
	assert.False(t, f.Allow(channel("kan_educational", "Kan Educational", "kan")))
	assert.False(t, f.Allow(channel("13b", "Channel 13B", "reshet13")))
}

func TestCaseInsensitiveMatching(t *testing.T) {
	f := FromConfig(&config.Config{ChannelInclude: "KAN"})
	assert.True(t, f.Allow(channel("kan11", "Kan 11", "kan")))
}

func TestInvalidPatternIgnored(t *testing.T) {
	f := FromConfig(&config.Config{ChannelInclude: "(["})
	assert.True(t, f.Allow(channel("anything", "Anything", "x")),
		"an uncompilable pattern must not block startup or filter everything out")
}
