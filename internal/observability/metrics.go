package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	FetchOutcomes     *prometheus.CounterVec // labels: outcome={fetched,cache_hit,failed}
	FetchRetries      prometheus.Counter
	FetchDuration     prometheus.Histogram
	RecordsDecoded    prometheus.Counter
	ParseAnomalies    prometheus.Counter
	DuplicatesDropped prometheus.Counter
	QCFlags           *prometheus.CounterVec // labels: flag
	TablesWritten     prometheus.Counter
	UnitDuration      prometheus.Histogram
	RunActive         prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchOutcomes,
		m.FetchRetries,
		m.FetchDuration,
		m.RecordsDecoded,
		m.ParseAnomalies,
		m.DuplicatesDropped,
		m.QCFlags,
		m.TablesWritten,
		m.UnitDuration,
		m.RunActive,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asos_ingest",
			Name:      "fetch_outcomes_total",
			Help:      "Retrieval unit fetch results by outcome.",
		}, []string{"outcome"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asos_ingest",
			Name:      "fetch_retries_total",
			Help:      "Transient fetch failures that triggered a backoff retry.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asos_ingest",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of individual archive HTTP requests.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		RecordsDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asos_ingest",
			Name:      "records_decoded_total",
			Help:      "Observation lines decoded, anomaly placeholders included.",
		}),
		ParseAnomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asos_ingest",
			Name:      "parse_anomalies_total",
			Help:      "Lines that could not be decoded and became placeholders.",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asos_ingest",
			Name:      "duplicates_dropped_total",
			Help:      "Records dropped by duplicate-timestamp collapse.",
		}),
		QCFlags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "asos_ingest",
			Name:      "qc_flags_total",
			Help:      "Quality-control flags recorded, by flag kind.",
		}, []string{"flag"}),
		TablesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "asos_ingest",
			Name:      "tables_written_total",
			Help:      "Station-month tables persisted to the corpus.",
		}),
		UnitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "asos_ingest",
			Name:      "unit_processing_duration_seconds",
			Help:      "End-to-end duration of fetch-decode-qc-write per unit.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "asos_ingest",
			Name:      "run_active",
			Help:      "1 while an ingestion run is in progress, 0 otherwise.",
		}),
	}
}
