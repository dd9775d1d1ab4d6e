package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentInitiationTotal counts checkout initiation outcomes.
	PaymentInitiationTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound gateway webhook outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentTransitionTotal counts engine transition requests by target state, source and outcome.
	PaymentTransitionTotal *prometheus.CounterVec
	// PaymentLateSuccessTotal counts success signals received for payments already failed locally.
	PaymentLateSuccessTotal prometheus.Counter
	// PaymentReconcileTotal counts poller outcomes.
	PaymentReconcileTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentInitiationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_initiation_total",
			Help:      "Count of payment initiation outcomes.",
		}, []string{"currency", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by event and outcome.",
		}, []string{"event", "result"})
		PaymentTransitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transition_total",
			Help:      "Count of payment state transition requests.",
		}, []string{"to", "source", "outcome"})
		PaymentLateSuccessTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_late_success_total",
			Help:      "Success notifications received for payments already marked failed.",
		})
		PaymentReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconcile_total",
			Help:      "Count of reconciliation poller outcomes.",
		}, []string{"result"})

		mustRegisterCollector(reg, PaymentInitiationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentInitiationTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentTransitionTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentTransitionTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentLateSuccessTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PaymentLateSuccessTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentReconcileTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentReconcileTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
