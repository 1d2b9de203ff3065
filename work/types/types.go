package types

import "strings"

// Channel represents a single live channel offered by a provider. The URL is
// either a direct stream URL or a provider-scoped opaque reference such as
// "reshet13://13b" that a resolver turns into a playable URL. Channels are
// immutable after construction.
type Channel struct {
	ID         string            // Stable channel identifier (tvg-id)
	Name       string            // Human-readable display name
	URL        string            // Direct stream URL or opaque provider reference
	Logo       string            // Channel logo URL (tvg-logo)
	Provider   string            // Owning provider name ("kan", "keshet", "reshet13")
	GroupTitle string            // Playlist group label; defaults to the provider name when empty
	Extra      map[string]string // Free-form provider attributes carried through untouched
}

// VOD represents a single on-demand item. It mirrors Channel with an added
// description; items come from a provider's lobby scrape or a static table.
type VOD struct {
	ID          string
	Name        string
	URL         string
	Poster      string
	Provider    string
	Description string
	Extra       map[string]string
}

// StreamDescriptor is the output of a successful resolution: the playable URL
// plus the HTTP headers a player must send. Produced fresh by a resolver call
// or returned intact from the link cache; callers never mutate it.
type StreamDescriptor struct {
	URL     string
	Headers map[string]string
}

// AsChannel converts a VOD item to a Channel for playlist generation.
func (v *VOD) AsChannel() Channel {
	group := v.Provider
	if group != "" {
		group = strings.ToUpper(group[:1]) + group[1:] + " VOD"
	}
	return Channel{
		ID:         v.Provider + "-vod-" + v.ID,
		Name:       v.Name,
		URL:        v.URL,
		Logo:       v.Poster,
		Provider:   v.Provider,
		GroupTitle: group,
		Extra:      v.Extra,
	}
}

// IsOpaqueRef reports whether a channel URL is a provider-scoped reference
// (scheme://identifier with a non-HTTP scheme) rather than a fetchable URL.
func IsOpaqueRef(url string) bool {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return false
	}
	return strings.Contains(url, "://")
}
