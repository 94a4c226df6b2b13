package uploads

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts upload outcomes and ingested rows.
type Metrics struct {
	files *prometheus.CounterVec
	rowsC *prometheus.CounterVec
}

// NewMetrics registers the upload collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logibill_uploads_total",
		Help: "Workbook uploads partitioned by kind and outcome.",
	}, []string{"kind", "status"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logibill_ingested_rows_total",
		Help: "Spreadsheet rows processed partitioned by kind and outcome.",
	}, []string{"kind", "outcome"})
	registerer.MustRegister(files, rows)
	return &Metrics{files: files, rowsC: rows}
}

func (m *Metrics) file(kind FileKind, status string) {
	if m == nil {
		return
	}
	m.files.WithLabelValues(strings.ToLower(string(kind)), status).Inc()
}

func (m *Metrics) rows(kind FileKind, accepted, rejected, skipped int) {
	if m == nil {
		return
	}
	k := strings.ToLower(string(kind))
	m.rowsC.WithLabelValues(k, "accepted").Add(float64(accepted))
	m.rowsC.WithLabelValues(k, "rejected").Add(float64(rejected))
	m.rowsC.WithLabelValues(k, "skipped").Add(float64(skipped))
}
