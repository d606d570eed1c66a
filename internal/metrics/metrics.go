// Package metrics exposes the engine's Prometheus counters and the /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fisse"

var (
	StoreReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "reads_total",
		Help:      "Document reads by the tier that answered them.",
	}, []string{"collection", "source"})

	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "writes_total",
		Help:      "Document writes by outcome of the inline remote push.",
	}, []string{"collection", "remote"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Hot cache lookups by result.",
	}, []string{"result"})

	OutboxProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "processed_total",
		Help:      "Outbox entries handled by the sync processor, by outcome.",
	}, []string{"outcome"})

	OutboxDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "entries",
		Help:      "Outbox entries by status at the last stats refresh.",
	}, []string{"status"})

	PeriodsMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "periods_materialized_total",
		Help:      "Period documents created from templates.",
	}, []string{"side"})

	ItemTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "item_transitions_total",
		Help:      "Item status changes by side and target status.",
	}, []string{"side", "status"})

	// Inconsistencies counts pay/undo sagas that left item and ledger out of step.
	Inconsistencies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_inconsistencies_total",
		Help:      "Partial pay/undo operations detected.",
	}, []string{"operation"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "API requests rejected by the rate limiter.",
	})

	Repairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_repairs_total",
		Help:      "Items healed by the repair pass.",
	}, []string{"kind"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
