package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for both
// pipeline passes (ingest and load).
type Metrics struct {
	// Ingest pass.
	RowsRead       prometheus.Counter
	RowsMatched    prometheus.Counter
	RowsDropped    *prometheus.CounterVec // labels: reason={schema_miss,pollutant,country,bad_timestamp,out_of_window,bad_coordinate,out_of_bounds}
	FilesProcessed prometheus.Counter
	FileFailures   prometheus.Counter

	// Load pass.
	LoadBatches      prometheus.Counter
	ReadingsInserted prometheus.Counter
	RowsSkipped      prometheus.Counter // artifact rows missing location/timestamp/pollutant/value

	PipelineRunning prometheus.Gauge
	BatchDuration   prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RowsRead,
		m.RowsMatched,
		m.RowsDropped,
		m.FilesProcessed,
		m.FileFailures,
		m.LoadBatches,
		m.ReadingsInserted,
		m.RowsSkipped,
		m.PipelineRunning,
		m.BatchDuration,
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
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "rows_read_total",
			Help:      "Total raw rows decoded from source archives.",
		}),
		RowsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "rows_matched_total",
			Help:      "Total rows that passed all filters and were written to the artifact.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "rows_dropped_total",
			Help:      "Rows removed during filtering, by reason.",
		}, []string{"reason"}),
		FilesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "files_processed_total",
			Help:      "Source archive files processed to completion.",
		}),
		FileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "file_failures_total",
			Help:      "Source archive files abandoned after download or decode failure.",
		}),
		LoadBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "load_batches_total",
			Help:      "Artifact batches committed to the store.",
		}),
		ReadingsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "readings_inserted_total",
			Help:      "Reading rows sent to the store (duplicates are dropped server-side).",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "airq_etl",
			Name:      "rows_skipped_total",
			Help:      "Artifact rows skipped during load for missing required fields.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "airq_etl",
			Name:      "pipeline_running",
			Help:      "1 when a pass is active, 0 when finished.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "airq_etl",
			Name:      "batch_duration_seconds",
			Help:      "Duration of one batch through its pass (filter+write or upsert+commit).",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveDrops feeds a batch's drop counts into the labelled counter.
// Zero counts are skipped so unused reasons never appear in the output.
func (m *Metrics) ObserveDrops(reasons map[string]int) {
	for reason, n := range reasons {
		if n > 0 {
			m.RowsDropped.WithLabelValues(reason).Add(float64(n))
		}
	}
}
