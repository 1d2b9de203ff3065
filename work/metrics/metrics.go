package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResolveAttempts counts URL resolution attempts per provider.
var ResolveAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iltv_resolve_attempts_total",
	Help: "Number of stream URL resolution attempts",
}, []string{"provider"})

// ResolveFailures counts failed resolutions per provider. A failure is a
// "not found" or upstream error; it is normal for some entries to fail.
var ResolveFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iltv_resolve_failures_total",
	Help: "Number of failed stream URL resolutions",
}, []string{"provider"})

// CacheHits counts cache hits by cache kind ("link", "content", "manifest").
var CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iltv_cache_hits_total",
	Help: "Number of cache hits",
}, []string{"cache"})

// TicketRequests counts entitlement ticket requests by response case code.
var TicketRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iltv_ticket_requests_total",
	Help: "Number of entitlement ticket requests",
}, []string{"case"})

// SegmentBytes counts bytes proxied through the segment endpoint.
var SegmentBytes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "iltv_segment_bytes_total",
	Help: "Total media segment bytes streamed to clients",
})

// SegmentErrors counts segment proxy failures by kind ("resolve", "fetch",
// "status", "copy").
var SegmentErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iltv_segment_errors_total",
	Help: "Number of segment proxy failures",
}, []string{"kind"})
