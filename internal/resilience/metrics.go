package resilience

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Upstream collectors, nil until MustRegisterMetrics runs.
var (
	BreakerState       *prometheus.GaugeVec
	BreakerTransitions *prometheus.CounterVec
	BreakerRejected    *prometheus.CounterVec
	UpstreamAttempts   *prometheus.CounterVec
)

// MustRegisterMetrics creates the upstream collectors under
// <namespace>_upstream_* and registers them with reg. Calling it again
// reuses the collectors already registered.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Breaker position per upstream: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per upstream.",
	}, []string{"target", "from", "to"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "breaker_rejected_total",
		Help:      "Calls refused without reaching the upstream.",
	}, []string{"target"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "attempts_total",
		Help:      "Outbound attempts per upstream by outcome.",
	}, []string{"target", "outcome"})

	BreakerState = register(reg, state).(*prometheus.GaugeVec)
	BreakerTransitions = register(reg, transitions).(*prometheus.CounterVec)
	BreakerRejected = register(reg, rejected).(*prometheus.CounterVec)
	UpstreamAttempts = register(reg, attempts).(*prometheus.CounterVec)
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(fmt.Errorf("register upstream metric: %w", err))
	}
	return c
}

func setStateGauge(target string, s State) {
	if BreakerState != nil {
		BreakerState.WithLabelValues(target).Set(s.gauge())
	}
}

func countTransition(target string, from, to State) {
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(target, from.String(), to.String()).Inc()
	}
}

func countRejected(target string) {
	if BreakerRejected != nil {
		BreakerRejected.WithLabelValues(target).Inc()
	}
	countAttempt(target, "rejected")
}

func countAttempt(target, outcome string) {
	if UpstreamAttempts != nil && target != "" {
		UpstreamAttempts.WithLabelValues(target, outcome).Inc()
	}
}
