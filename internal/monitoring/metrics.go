package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scraper.
type Metrics struct {
	FetchesTotal    *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	FetchesInFlight prometheus.Gauge
	PostsTotal      *prometheus.CounterVec
	RunsTotal       *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the scraper metrics with reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_fetches_total",
			Help: "The total number of page fetches",
		}, []string{"phase", "outcome"}), // outcome: success, failure
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_fetch_duration_seconds",
			Help:    "Duration of page fetches.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"phase"}),
		FetchesInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_fetches_in_flight",
			Help: "Current number of fetches in flight.",
		}),
		PostsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_posts_total",
			Help: "The total number of post pages parsed",
		}, []string{"outcome"}), // parsed, parse_failed
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "The total number of pipeline runs",
		}, []string{"outcome"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_http_requests_total",
			Help: "Total number of API requests.",
		}, []string{"method", "route", "code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_http_request_duration_seconds",
			Help:    "Duration of API requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
}

func (m *Metrics) ObserveFetch(phase string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.FetchesTotal.WithLabelValues(phase, outcome).Inc()
	m.FetchDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) IncPosts(outcome string) {
	m.PostsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRuns(outcome string) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	status := strconv.Itoa(code)
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
