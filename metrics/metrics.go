// Package metrics wraps the Prometheus counters the forwarding plane is
// normally judged by, following the label-by-reason style common to the
// example repos' own metrics registries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every counter/gauge the data plane updates. It is safe
// for concurrent use (the underlying prometheus types already are) and
// is constructed once in cmd/swrouter and passed by pointer to the
// dispatcher and ARP cache.
type Registry struct {
	FramesDropped    *prometheus.CounterVec
	PacketsForwarded prometheus.Counter
	ICMPEmitted      *prometheus.CounterVec
	ARPRequestsSent  prometheus.Counter
	ARPResolutions   prometheus.Counter
	ARPTimeouts      prometheus.Counter
	ARPQueueOverflow prometheus.Counter
}

// New registers and returns a Registry on reg. Passing
// prometheus.NewRegistry() keeps the metrics isolated from the global
// default registry, which is useful in tests that construct more than
// one Registry in the same process.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swrouter",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped by the dispatcher, labeled by reason.",
		}, []string{"reason"}),
		PacketsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swrouter",
			Name:      "packets_forwarded_total",
			Help:      "IPv4 packets successfully forwarded out an interface.",
		}),
		ICMPEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swrouter",
			Name:      "icmp_emitted_total",
			Help:      "ICMP messages generated by the router, labeled by type and code.",
		}, []string{"type", "code"}),
		ARPRequestsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swrouter",
			Name:      "arp_requests_sent_total",
			Help:      "ARP requests emitted by the resolver loop.",
		}),
		ARPResolutions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swrouter",
			Name:      "arp_resolutions_total",
			Help:      "ARP requests resolved by a matching reply.",
		}),
		ARPTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swrouter",
			Name:      "arp_timeouts_total",
			Help:      "ARP requests that failed after five retries.",
		}),
		ARPQueueOverflow: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swrouter",
			Name:      "arp_queue_overflow_total",
			Help:      "Queued packets dropped because a pending request's queue was full.",
		}),
	}
}
