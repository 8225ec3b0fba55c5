// Package metrics exposes Prometheus instruments for the order lifecycle.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "order_executor"

// Metrics holds all Prometheus metrics for the executor.
type Metrics struct {
	registry *prometheus.Registry

	// Entry metrics
	EntriesPlaced   *prometheus.CounterVec
	EntriesRejected *prometheus.CounterVec

	// Risk metrics
	TicksProcessed prometheus.Counter
	ExitsTriggered *prometheus.CounterVec
	Exits          *prometheus.CounterVec
	OpenTrades     prometheus.Gauge
	RealizedPnL    prometheus.Counter

	// Persistence metrics
	SnapshotWrites        *prometheus.CounterVec
	SnapshotWriteDuration prometheus.Histogram

	// Notification metrics
	NotificationsSent    *prometheus.CounterVec
	NotificationsDropped prometheus.Counter

	// Broker metrics
	BrokerCalls        *prometheus.CounterVec
	BrokerCallDuration *prometheus.HistogramVec
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EntriesPlaced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "placed_total",
			Help:      "Entry orders accepted by the broker",
		}, []string{"kind"}),
		EntriesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entry",
			Name:      "rejected_total",
			Help:      "Entry attempts that did not produce a trade",
		}, []string{"category"}),

		TicksProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "ticks_processed_total",
			Help:      "Valid price ticks evaluated against open trades",
		}),
		ExitsTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "exits_triggered_total",
			Help:      "Exit triggers by reason",
		}, []string{"reason"}),
		Exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "exits_total",
			Help:      "Completed exit attempts by reason and result",
		}, []string{"reason", "result"}),
		OpenTrades: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "open_trades",
			Help:      "Trades currently in the live table",
		}),
		RealizedPnL: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "realized_pnl_events_total",
			Help:      "Closed trades whose PnL was booked to the ledger",
		}),

		SnapshotWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "writes_total",
			Help:      "Snapshot writes by result",
		}, []string{"result"}),
		SnapshotWriteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "write_duration_seconds",
			Help:      "Snapshot write latency including retries",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),

		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications delivered by sink and result",
		}, []string{"sink", "result"}),
		NotificationsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the queue was full",
		}),

		BrokerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "calls_total",
			Help:      "Broker API calls by operation and result",
		}, []string{"op", "result"}),
		BrokerCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "call_duration_seconds",
			Help:      "Broker API call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) EntryPlaced(kind string) {
	if m == nil {
		return
	}
	m.EntriesPlaced.WithLabelValues(kind).Inc()
}

func (m *Metrics) EntryRejected(category string) {
	if m == nil {
		return
	}
	m.EntriesRejected.WithLabelValues(category).Inc()
}

func (m *Metrics) TickProcessed() {
	if m == nil {
		return
	}
	m.TicksProcessed.Inc()
}

func (m *Metrics) ExitTriggered(reason string) {
	if m == nil {
		return
	}
	m.ExitsTriggered.WithLabelValues(reason).Inc()
}

func (m *Metrics) ExitFinished(reason string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Exits.WithLabelValues(reason, result).Inc()
	if ok {
		m.RealizedPnL.Inc()
	}
}

func (m *Metrics) SetOpenTrades(n int) {
	if m == nil {
		return
	}
	m.OpenTrades.Set(float64(n))
}

func (m *Metrics) SnapshotWritten(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.SnapshotWrites.WithLabelValues(result).Inc()
	m.SnapshotWriteDuration.Observe(d.Seconds())
}

func (m *Metrics) NotificationSent(sink string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.NotificationsSent.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *Metrics) BrokerCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.BrokerCalls.WithLabelValues(op, result).Inc()
	m.BrokerCallDuration.WithLabelValues(op).Observe(d.Seconds())
}
