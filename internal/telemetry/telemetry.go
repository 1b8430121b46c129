// Package telemetry holds the client's Prometheus metric definitions:
// ring-refresh health, worker-selection latency, page I/O counters, and
// load-job polling, all under its own registry so embedding applications
// can expose (or ignore) /metrics independently.
package telemetry

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric emitted by the client.
type Metrics struct {
	// Membership / ring refresh
	RingRefreshTotal     *prometheus.CounterVec
	RingRefreshDuration  prometheus.Histogram
	KnownWorkers         prometheus.Gauge

	// Worker selection
	SelectDurationSeconds prometheus.Histogram
	SelectMissesTotal     prometheus.Counter

	// Page I/O
	PageReadsTotal       *prometheus.CounterVec
	PageReadDuration     *prometheus.HistogramVec
	PageWritesTotal      *prometheus.CounterVec
	PageWriteDuration    prometheus.Histogram
	BytesReadTotal       prometheus.Counter
	BytesWrittenTotal    prometheus.Counter

	// Load job protocol
	LoadPollsTotal  *prometheus.CounterVec
	LoadJobsTotal   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own Prometheus registry. All
// metrics use the "ufscache" namespace.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,

		RingRefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "ring",
			Name:      "refresh_total",
			Help:      "Total number of membership refresh attempts, by outcome.",
		}, []string{"status"}),

		RingRefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ufscache",
			Subsystem: "ring",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a single membership refresh round trip.",
			Buckets:   prometheus.DefBuckets,
		}),

		KnownWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ufscache",
			Subsystem: "ring",
			Name:      "known_workers",
			Help:      "Number of distinct workers in the currently published ring.",
		}),

		SelectDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ufscache",
			Subsystem: "select",
			Name:      "duration_seconds",
			Help:      "Duration of a single Select call over the consistent-hash ring.",
			Buckets:   prometheus.DefBuckets,
		}),

		SelectMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "select",
			Name:      "misses_total",
			Help:      "Total number of Select calls that returned fewer workers than requested.",
		}),

		PageReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "page",
			Name:      "reads_total",
			Help:      "Total number of page read HTTP requests, by outcome.",
		}, []string{"status"}),

		PageReadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ufscache",
			Subsystem: "page",
			Name:      "read_duration_seconds",
			Help:      "Duration of a single page read HTTP request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}), // kind: "full" | "range"

		PageWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "page",
			Name:      "writes_total",
			Help:      "Total number of page write HTTP requests, by outcome.",
		}, []string{"status"}),

		PageWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ufscache",
			Subsystem: "page",
			Name:      "write_duration_seconds",
			Help:      "Duration of a single page write HTTP request.",
			Buckets:   prometheus.DefBuckets,
		}),

		BytesReadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "page",
			Name:      "bytes_read_total",
			Help:      "Total number of page bytes read.",
		}),

		BytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "page",
			Name:      "bytes_written_total",
			Help:      "Total number of page bytes written.",
		}),

		LoadPollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "load",
			Name:      "polls_total",
			Help:      "Total number of load-job progress polls, by reported state.",
		}, []string{"state"}),

		LoadJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufscache",
			Subsystem: "load",
			Name:      "jobs_total",
			Help:      "Total number of load jobs observed to completion, by terminal outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.RingRefreshTotal,
		m.RingRefreshDuration,
		m.KnownWorkers,
		m.SelectDurationSeconds,
		m.SelectMissesTotal,
		m.PageReadsTotal,
		m.PageReadDuration,
		m.PageWritesTotal,
		m.PageWriteDuration,
		m.BytesReadTotal,
		m.BytesWrittenTotal,
		m.LoadPollsTotal,
		m.LoadJobsTotal,
	)

	return m
}

// Serve starts an HTTP server exposing the /metrics endpoint on addr. It
// blocks until the server exits and logs any error.
func (m *Metrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	log.Printf("ufscache client metrics server listening on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("ufscache client metrics server error: %v", err)
	}
}
