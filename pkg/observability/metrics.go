// Package observability provides metrics and tracing for simplot runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	sperrors "github.com/otherjamesbrown/simplot/pkg/errors"
	"github.com/otherjamesbrown/simplot/pkg/plot"
)

// File status label values.
const (
	FileStatusCompleted = "completed"
	FileStatusFailed    = "failed"
)

// Metrics holds the Prometheus metrics of the classification engine and
// the file level runners. It implements plot.Observer.
type Metrics struct {
	// Engine metrics
	RowsTotal      *prometheus.CounterVec
	PointsTotal    *prometheus.CounterVec
	RowErrorsTotal *prometheus.CounterVec
	MarkersTotal   *prometheus.CounterVec

	// File metrics
	FilesTotal  *prometheus.CounterVec
	FileSeconds *prometheus.HistogramVec
}

var _ plot.Observer = (*Metrics)(nil)

// DefaultMetrics creates metrics registered with the default registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplot_rows_total",
				Help: "Rows read by outcome",
			},
			[]string{"outcome"},
		),
		PointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplot_points_total",
				Help: "Plot points emitted by kind",
			},
			[]string{"kind"},
		),
		RowErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplot_row_errors_total",
				Help: "Row errors by error code",
			},
			[]string{"code"},
		),
		MarkersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplot_error_markers_total",
				Help: "Error marker resolutions",
			},
			[]string{"resolution"},
		),
		FilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "simplot_files_total",
				Help: "Action log files processed by status",
			},
			[]string{"status"},
		),
		FileSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "simplot_file_processing_seconds",
				Help:    "Time spent processing one action log file",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"status"},
		),
	}
}

// RowClassified implements plot.Observer.
func (m *Metrics) RowClassified(outcome plot.Outcome) {
	m.RowsTotal.WithLabelValues(string(outcome)).Inc()
}

// PointEmitted implements plot.Observer.
func (m *Metrics) PointEmitted(kind plot.Kind) {
	m.PointsTotal.WithLabelValues(string(kind)).Inc()
}

// RowFailed implements plot.Observer.
func (m *Metrics) RowFailed(code sperrors.ErrorCode) {
	m.RowErrorsTotal.WithLabelValues(string(code)).Inc()
}

// MarkerResolved implements plot.Observer.
func (m *Metrics) MarkerResolved(resolution plot.MarkerResolution) {
	m.MarkersTotal.WithLabelValues(string(resolution)).Inc()
}

// RecordFile records a processed file.
func (m *Metrics) RecordFile(status string, seconds float64) {
	m.FilesTotal.WithLabelValues(status).Inc()
	m.FileSeconds.WithLabelValues(status).Observe(seconds)
}

// WriteTextfile writes the metrics gathered by g to path in the text
// exposition format, for the node exporter textfile collector.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
