// Package metrics exposes relay and update counters to Prometheus.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/captionrelay/internal/relay"
)

const namespace = "captionrelay"

// Metrics holds the collectors of one bot instance in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	updates      *prometheus.CounterVec
	relays       *prometheus.CounterVec
	relayLatency prometheus.Histogram
	floodWaits   prometheus.Counter
	floodSeconds prometheus.Histogram
	batches      prometheus.Counter
	batchItems   *prometheus.CounterVec
	evictions    prometheus.Counter
	replies      *prometheus.CounterVec

	relayed atomic.Int64
	failed  atomic.Int64
	floods  atomic.Int64
}

var _ relay.Observer = (*Metrics)(nil)

// New builds and registers the collectors. sessions, when non-nil, backs the
// active sessions gauge.
func New(sessions func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, by kind.",
		}, []string{"kind"}),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Relayed media items, by media kind and outcome.",
		}, []string{"kind", "outcome"}),
		relayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Time to relay one item, flood waits included.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		floodWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flood_waits_total",
			Help:      "Flood control waits honoured before resubmitting.",
		}),
		floodSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flood_wait_seconds",
			Help:      "Length of flood control waits.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 300},
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Committed upload batches.",
		}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_items_total",
			Help:      "Items of committed batches, by result.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_evictions_total",
			Help:      "Conversations removed after the idle timeout.",
		}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replies_total",
			Help:      "Bot replies sent through the dispatcher, by action and result.",
		}, []string{"action", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.updates,
		m.relays,
		m.relayLatency,
		m.floodWaits,
		m.floodSeconds,
		m.batches,
		m.batchItems,
		m.evictions,
		m.replies,
	)
	if sessions != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Conversations currently in progress.",
		}, func() float64 { return float64(sessions()) }))
	}
	return m
}

// Registry returns the registry holding all collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveUpdate counts one inbound update.
func (m *Metrics) ObserveUpdate(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}

// RelayFinished implements relay.Observer.
func (m *Metrics) RelayFinished(kind relay.Kind, outcome relay.Outcome, _ int, took time.Duration) {
	m.relays.WithLabelValues(string(kind), outcome.String()).Inc()
	m.relayLatency.Observe(took.Seconds())
	if outcome == relay.Success {
		m.relayed.Add(1)
		return
	}
	m.failed.Add(1)
}

// FloodWaited implements relay.Observer.
func (m *Metrics) FloodWaited(wait time.Duration) {
	m.floodWaits.Inc()
	m.floodSeconds.Observe(wait.Seconds())
	m.floods.Add(1)
}

// BatchFinished implements relay.Observer.
func (m *Metrics) BatchFinished(r relay.Report) {
	m.batches.Inc()
	m.batchItems.WithLabelValues("succeeded").Add(float64(r.Succeeded))
	m.batchItems.WithLabelValues("failed").Add(float64(r.Failed))
	m.batchItems.WithLabelValues("skipped").Add(float64(r.Skipped))
}

// SessionsEvicted counts conversations dropped by the idle sweep.
func (m *Metrics) SessionsEvicted(n int) {
	if n > 0 {
		m.evictions.Add(float64(n))
	}
}

// ReplySent counts a finished dispatcher job.
func (m *Metrics) ReplySent(action string, _ int, err error) {
	result := "ok"
	if err != nil {
		result = "fail"
	}
	m.replies.WithLabelValues(action, result).Inc()
}

// Totals reports relay counters since start.
func (m *Metrics) Totals() (relayed, failed, floodWaits int64) {
	return m.relayed.Load(), m.failed.Load(), m.floods.Load()
}
