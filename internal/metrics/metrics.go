// Package metrics exposes Prometheus counters for inventory operations and
// the ledger.
package metrics

import (
	"context"
	"net/http"
	"time"

	"ricemill-inventory/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	ledgerEntries  *prometheus.CounterVec
	ledgerQuantity *prometheus.CounterVec
}

// New builds a private registry so tests can create as many as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ricemill",
				Name:      "inventory_operations_total",
				Help:      "Inventory operations by name and outcome code.",
			},
			[]string{"operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ricemill",
				Name:      "inventory_operation_duration_seconds",
				Help:      "Inventory operation latency.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"operation"},
		),
		ledgerEntries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ricemill",
				Name:      "ledger_entries_total",
				Help:      "Ledger entries appended, by kind.",
			},
			[]string{"kind"},
		),
		ledgerQuantity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ricemill",
				Name:      "ledger_quantity_moved_total",
				Help:      "Absolute inventory units moved by ledger entries, by kind.",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.ledgerEntries,
		m.ledgerQuantity,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe records one finished operation. The outcome label is the error code
// ("OK" on success).
func (m *Metrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, core.ErrorCode(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// StockChanged counts committed ledger entries.
func (m *Metrics) StockChanged(_ context.Context, change core.StockChange) {
	if m == nil {
		return
	}
	for _, e := range change.Entries {
		kind := string(e.Kind)
		m.ledgerEntries.WithLabelValues(kind).Inc()
		qty, _ := e.Quantity.Abs().Float64()
		m.ledgerQuantity.WithLabelValues(kind).Add(qty)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
