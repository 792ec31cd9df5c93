package httpapi

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qms/turn-service/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type statsSource interface {
	Stats(ctx context.Context) (models.QueueStats, error)
}

// Metrics holds the service's Prometheus instruments. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	registry    *prometheus.Registry
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	transitions *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry, source statsSource) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		// Total HTTP requests partitioned by method, route, and status code
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_inflight_requests",
				Help: "Number of HTTP requests currently being served",
			},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turn_transitions_total",
				Help: "Turn lifecycle transitions by action",
			},
			[]string{"action"},
		),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if source != nil {
		reg.MustRegister(newQueueCollector(source))
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(writer, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"route":  routeLabel(r.URL.Path),
			"status": strconv.Itoa(writer.status),
		}
		m.requests.With(labels).Inc()
		m.duration.With(labels).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) transition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

var idResources = map[string]bool{
	"turns":     true,
	"modules":   true,
	"customers": true,
	"staff":     true,
}

// routeLabel collapses resource ids so the route label stays low-cardinality.
func routeLabel(path string) string {
	if path == "/healthz" || path == "/metrics" {
		return path
	}
	if !strings.HasPrefix(path, "/api/") {
		return "other"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && idResources[parts[1]] {
		parts[2] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

// queueCollector exports today's turn counts per status at scrape time.
type queueCollector struct {
	source  statsSource
	turns   *prometheus.Desc
	timeout time.Duration
}

func newQueueCollector(source statsSource) *queueCollector {
	return &queueCollector{
		source:  source,
		turns:   prometheus.NewDesc("turns_today", "Turns issued for the current service day by status", []string{"status"}, nil),
		timeout: 2 * time.Second,
	}
}

func (c *queueCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.turns
}

func (c *queueCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	stats, err := c.source.Stats(ctx)
	if err != nil {
		log.Printf("metrics stats error: %v", err)
		return
	}
	counts := map[string]int{
		models.StatusWaiting:     stats.Waiting,
		models.StatusBeingServed: stats.BeingServed,
		models.StatusCompleted:   stats.Completed,
		models.StatusCancelled:   stats.Cancelled,
	}
	for _, status := range models.TurnStatuses {
		ch <- prometheus.MustNewConstMetric(c.turns, prometheus.GaugeValue, float64(counts[status]), status)
	}
}
