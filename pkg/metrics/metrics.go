package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "httpmocker"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the controller's collectors in a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	// AppStartsTotal counts start attempts. Labels: kind, result.
	AppStartsTotal *prometheus.CounterVec
	// AppStopsTotal counts stop attempts. Labels: kind, result.
	AppStopsTotal *prometheus.CounterVec
	// RequestsTotal counts control API requests. Labels: method, route, status.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration observes control API latency. Labels: method, route.
	RequestDuration *prometheus.HistogramVec
}

// New creates Metrics. running reports the number of live apps and backs the
// apps_running gauge.
func New(running func() int) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		AppStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "app_starts_total",
			Help:      "Total number of app start attempts.",
		}, []string{"kind", "result"}),
		AppStopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "app_stops_total",
			Help:      "Total number of app stop attempts.",
		}, []string{"kind", "result"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of control API requests.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of control API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.Registry.MustRegister(
		m.AppStartsTotal,
		m.AppStopsTotal,
		m.RequestsTotal,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if running != nil {
		m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "apps_running",
			Help:      "Number of running mock apps.",
		}, func() float64 { return float64(running()) }))
	}
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveStart records a start attempt.
func (m *Metrics) ObserveStart(kind string, err error) {
	m.AppStartsTotal.WithLabelValues(kind, result(err)).Inc()
}

// ObserveStop records a stop attempt.
func (m *Metrics) ObserveStop(kind string, err error) {
	m.AppStopsTotal.WithLabelValues(kind, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// statusRecorder captures the response status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and durations labelled by route.
func (m *Metrics) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
