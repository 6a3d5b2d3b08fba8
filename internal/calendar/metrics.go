package calendar

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var lookupDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "calendar_lookup_duration_seconds",
		Help:    "Latency of busy-interval lookups by source and outcome.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"source", "outcome"},
)

func init() {
	prometheus.MustRegister(lookupDuration)
}

func observeLookup(source string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	lookupDuration.WithLabelValues(source, outcome).Observe(time.Since(start).Seconds())
}
