package ratelimit

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeAdmitted   = "admitted"
	outcomeRejected   = "rejected"
	outcomeStoreError = "store_error"
)

var decisions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ratelimit_decisions_total",
		Help: "Rate limiter decisions by route class and outcome.",
	},
	[]string{"route_class", "outcome"},
)

func init() {
	prometheus.MustRegister(decisions)
}

func observeDecision(class, outcome string) {
	decisions.WithLabelValues(class, outcome).Inc()
}
