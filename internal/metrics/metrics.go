// Package metrics exposes Prometheus metrics of the poll loop.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "calendar_notifier"

// Cycle outcomes.
const (
	CycleOK          = "ok"
	CycleFetchError  = "fetch_error"
	CycleLedgerError = "ledger_error"
	CycleSkipped     = "skipped"
)

type Metrics struct {
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	eventsFetched    prometheus.Gauge
	eventsRejected   prometheus.Counter
	notificationsDue prometheus.Counter
	sent             prometheus.Counter
	deliveryFailures prometheus.Counter
	recordFailures   prometheus.Counter
	purged           prometheus.Counter
	ledgerRecords    prometheus.Gauge
}

func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by outcome.",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of a poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		eventsFetched: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_fetched",
			Help:      "Valid events returned by the calendar in the last cycle.",
		}),
		eventsRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Malformed events skipped during normalization.",
		}),
		notificationsDue: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_due_total",
			Help:      "Reminders found due.",
		}),
		sent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Reminders delivered to the messaging channel.",
		}),
		deliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_delivery_failures_total",
			Help:      "Reminders the messaging channel did not accept.",
		}),
		recordFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_record_failures_total",
			Help:      "Delivered reminders that could not be written to the ledger.",
		}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_purged_records_total",
			Help:      "Ledger records removed by retention purge.",
		}),
		ledgerRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_records",
			Help:      "Records in the ledger after the last purge.",
		}),
	}
}

func (m *Metrics) Cycle(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *Metrics) Fetched(valid, rejected int) {
	if m == nil {
		return
	}
	m.eventsFetched.Set(float64(valid))
	m.eventsRejected.Add(float64(rejected))
}

func (m *Metrics) Due(n int) {
	if m == nil {
		return
	}
	m.notificationsDue.Add(float64(n))
}

func (m *Metrics) Sent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

func (m *Metrics) RecordFailed() {
	if m == nil {
		return
	}
	m.recordFailures.Inc()
}

func (m *Metrics) Purged(removed, remaining int64) {
	if m == nil {
		return
	}
	m.purged.Add(float64(removed))
	m.ledgerRecords.Set(float64(remaining))
}
