package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Import metrics
	ImportFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twmarket_import_files_total",
			Help: "Total number of imported files",
		},
		[]string{"type", "status"}, // status: success|error|dropped
	)

	ImportRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twmarket_import_rows_total",
			Help: "Rows seen by the importer",
		},
		[]string{"type", "result"}, // result: inserted|duplicate|invalid
	)

	ImportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twmarket_import_duration_seconds",
			Help:    "Per-file import duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"type"},
	)

	// Scrape metrics
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twmarket_http_requests_total",
			Help: "Outgoing HTTP requests",
		},
		[]string{"source", "status"}, // status: success|error
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twmarket_http_latency_seconds",
			Help:    "Outgoing HTTP latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	// Download metrics
	DownloadTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twmarket_download_tasks_total",
			Help: "Finished download tasks",
		},
		[]string{"kind", "status"}, // status: success|failed|skipped
	)

	DownloadedRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twmarket_downloaded_rows_total",
			Help: "Rows stored by downloaders",
		},
		[]string{"kind"},
	)
)

var initOnce sync.Once

// Init registers the collectors with the default registry. It is safe to
// call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(ImportFiles)
		prometheus.MustRegister(ImportRows)
		prometheus.MustRegister(ImportDuration)

		prometheus.MustRegister(HTTPRequests)
		prometheus.MustRegister(HTTPLatency)

		prometheus.MustRegister(DownloadTasks)
		prometheus.MustRegister(DownloadedRows)
	})
}

// Handler returns the HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordImport(kind, status string, duration time.Duration, inserted, duplicate, invalid int64) {
	if kind == "" {
		kind = "unknown"
	}
	ImportFiles.WithLabelValues(kind, status).Inc()
	ImportDuration.WithLabelValues(kind).Observe(duration.Seconds())
	ImportRows.WithLabelValues(kind, "inserted").Add(float64(inserted))
	ImportRows.WithLabelValues(kind, "duplicate").Add(float64(duplicate))
	ImportRows.WithLabelValues(kind, "invalid").Add(float64(invalid))
}

func RecordHTTPRequest(source string, latency time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	HTTPRequests.WithLabelValues(source, status).Inc()
	HTTPLatency.WithLabelValues(source).Observe(latency.Seconds())
}

func RecordDownload(kind, status string, rows int64) {
	DownloadTasks.WithLabelValues(kind, status).Inc()
	if rows > 0 {
		DownloadedRows.WithLabelValues(kind).Add(float64(rows))
	}
}
