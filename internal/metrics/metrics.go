// Package metrics exposes Prometheus instruments for the intake pipeline.
// Every recording method is safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "intake"

// OCR call outcomes.
const (
	OCROK        = "ok"
	OCRTransient = "transient"
	OCRTimeout   = "timeout"
	OCRPermanent = "permanent"
)

type Metrics struct {
	transitions   *prometheus.CounterVec
	ocrCalls      *prometheus.CounterVec
	ocrDuration   prometheus.Histogram
	queueDepth    prometheus.Gauge
	purged        prometheus.Counter
	deduplicated  *prometheus.CounterVec
	statementRows *prometheus.CounterVec
	rpcs          *prometheus.CounterVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "document_transitions_total",
				Help:      "Documents entering each lifecycle state.",
			},
			[]string{"state"},
		),
		ocrCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ocr_calls_total",
				Help:      "OCR collaborator calls by outcome.",
			},
			[]string{"outcome"},
		),
		ocrDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ocr_call_duration_seconds",
				Help:      "Latency of OCR collaborator calls.",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Tasks waiting in the processing queue.",
			},
		),
		purged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "purged_documents_total",
				Help:      "classified_ok documents removed after expiry.",
			},
		),
		deduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deduplicated_documents_total",
				Help:      "Documents merged into an existing record.",
			},
			[]string{"kind"},
		),
		statementRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "statement_rows_total",
				Help:      "Bank statement rows by import outcome.",
			},
			[]string{"outcome"},
		),
		rpcs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "grpc_requests_total",
				Help:      "gRPC requests handled, by method and status code.",
			},
			[]string{"method", "code"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.transitions, m.ocrCalls, m.ocrDuration, m.queueDepth,
		m.purged, m.deduplicated, m.statementRows, m.rpcs,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) StateEntered(state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) OCRCall(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ocrCalls.WithLabelValues(outcome).Inc()
	m.ocrDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) Purged(n int) {
	if m == nil {
		return
	}
	m.purged.Add(float64(n))
}

func (m *Metrics) Deduplicated(kind string) {
	if m == nil {
		return
	}
	m.deduplicated.WithLabelValues(kind).Inc()
}

// StatementRows records the tallies of one import.
func (m *Metrics) StatementRows(imported, duplicated, skipped, errored int) {
	if m == nil {
		return
	}
	m.statementRows.WithLabelValues("imported").Add(float64(imported))
	m.statementRows.WithLabelValues("duplicated").Add(float64(duplicated))
	m.statementRows.WithLabelValues("skipped").Add(float64(skipped))
	m.statementRows.WithLabelValues("errored").Add(float64(errored))
}

func (m *Metrics) RPC(method, code string) {
	if m == nil {
		return
	}
	m.rpcs.WithLabelValues(method, code).Inc()
}
