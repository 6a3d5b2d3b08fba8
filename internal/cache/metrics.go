package cache

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeHit         = "hit"
	outcomeNegativeHit = "negative_hit"
	outcomeMiss        = "miss"
	outcomeShared      = "shared"
	outcomeStale       = "stale"
	outcomeError       = "error"
	outcomeCanceled    = "canceled"
)

var (
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Cache lookups by cache name and outcome.",
		},
		[]string{"cache", "outcome"},
	)
	evictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Entries evicted for capacity.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(requests, evictions)
}
