package resolver

import (
	"context"
	"errors"

	"iltv-proxy/work/types"
)

// ErrNotFound marks a resolution that found nothing: an unknown identifier,
// a page none of the extraction patterns matched, or an upstream document
// missing the fields we need. It is the resolver-boundary failure value;
// callers skip the entry or answer 404, they never crash on it.
var ErrNotFound = errors.New("stream not found")

// Resolver converts a provider-scoped reference or page URL into a playable
// stream descriptor. Implementations own their caches, degrade every internal
// fault to ErrNotFound (logged), and are safe for concurrent use.
type Resolver interface {
	// Name returns the provider name ("kan", "keshet", "reshet13").
	Name() string

	// Resolve turns ref into a stream descriptor. preferHTTP selects the
	// scheme of the returned URL for players that cannot speak TLS.
	Resolve(ctx context.Context, ref string, preferHTTP bool) (*types.StreamDescriptor, error)

	// Channels lists the provider's live channels.
	Channels() []types.Channel

	// VODs lists up to max on-demand items.
	VODs(ctx context.Context, max int) []types.VOD

	// ClearCaches drops the provider's content and link caches.
	ClearCaches()
}
