package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing, which keeps tests off the global registry.
type Metrics struct {
	PagesFetched  prometheus.Counter
	RecordsParsed prometheus.Counter
	RowsInserted  prometheus.Counter
	RunsTotal     *prometheus.CounterVec
	ErrorsTotal   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		PagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_pages_fetched_total",
			Help: "The total number of listing pages fetched",
		}),
		RecordsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_records_parsed_total",
			Help: "The total number of raw records parsed from listing pages",
		}),
		RowsInserted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_rows_inserted_total",
			Help: "The total number of applicant rows inserted",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_runs_total",
			Help: "The total number of ingestion runs by outcome",
		}, []string{"outcome"}), // 'done' or 'error'
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'fetch_failed', 'load_failed'
	}
}

func (m *Metrics) IncPagesFetched() {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
}

func (m *Metrics) AddRecordsParsed(n int) {
	if m == nil {
		return
	}
	m.RecordsParsed.Add(float64(n))
}

func (m *Metrics) AddRowsInserted(n int) {
	if m == nil {
		return
	}
	m.RowsInserted.Add(float64(n))
}

func (m *Metrics) IncRuns(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncErrors(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
