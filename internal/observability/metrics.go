package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics stores Prometheus collectors used by the webhook, engine and
// dispatch flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	providerEventsTotal     *prometheus.CounterVec
	statusAppliedTotal      *prometheus.CounterVec
	duplicateUpdatesTotal   *prometheus.CounterVec
	eventRetriesTotal       prometheus.Counter
	eventsDroppedTotal      prometheus.Counter
	callbackAttemptsTotal   *prometheus.CounterVec
	callbackAttemptDuration *prometheus.HistogramVec
	callbackRetriesTotal    prometheus.Counter
	complaintsTotal         prometheus.Counter
	workerInflight          *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "outcome_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		providerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "provider_events_total",
				Help:      "Total number of normalized provider events by kind.",
			},
			[]string{"kind"},
		),
		statusAppliedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "status_applied_total",
				Help:      "Total number of notification status transitions applied.",
			},
			[]string{"status"},
		),
		duplicateUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "duplicate_status_updates_total",
				Help:      "Total number of status updates observed as duplicates of a terminal state.",
			},
			[]string{"status"},
		),
		eventRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "event_resolution_retries_total",
				Help:      "Total number of grace-window retries scheduled for unresolved provider references.",
			},
		),
		eventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "events_dropped_total",
				Help:      "Total number of provider events dropped after the grace window expired.",
			},
		),
		callbackAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "callback_attempts_total",
				Help:      "Total number of callback dispatch attempts by channel and outcome.",
			},
			[]string{"channel", "outcome"},
		),
		callbackAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "outcome_engine",
				Name:      "callback_attempt_duration_seconds",
				Help:      "Callback dispatch attempt duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		callbackRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "callback_retries_scheduled_total",
				Help:      "Total number of callback dispatch retries scheduled.",
			},
		),
		complaintsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "outcome_engine",
				Name:      "complaints_total",
				Help:      "Total number of complaint records created.",
			},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "outcome_engine",
				Name:      "worker_inflight",
				Help:      "Current number of in-flight worker operations grouped by queue.",
			},
			[]string{"queue"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.providerEventsTotal,
		m.statusAppliedTotal,
		m.duplicateUpdatesTotal,
		m.eventRetriesTotal,
		m.eventsDroppedTotal,
		m.callbackAttemptsTotal,
		m.callbackAttemptDuration,
		m.callbackRetriesTotal,
		m.complaintsTotal,
		m.workerInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FiberHandler exposes the scrape endpoint inside a fiber app.
func (m *Metrics) FiberHandler() fiber.Handler {
	scrape := fasthttpadaptor.NewFastHTTPHandler(m.Handler())
	return func(c *fiber.Ctx) error {
		scrape(c.Context())
		return nil
	}
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncProviderEvent(kind string) {
	if m == nil {
		return
	}
	m.providerEventsTotal.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncStatusApplied(status string) {
	if m == nil {
		return
	}
	m.statusAppliedTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncDuplicateUpdate(status string) {
	if m == nil {
		return
	}
	m.duplicateUpdatesTotal.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *Metrics) IncEventRetryScheduled() {
	if m == nil {
		return
	}
	m.eventRetriesTotal.Inc()
}

func (m *Metrics) IncEventDropped() {
	if m == nil {
		return
	}
	m.eventsDroppedTotal.Inc()
}

func (m *Metrics) IncCallbackAttempt(channel string, outcome string) {
	if m == nil {
		return
	}
	m.callbackAttemptsTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveCallbackAttemptDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.callbackAttemptDuration.WithLabelValues(normalizeLabel(channel)).Observe(seconds)
}

func (m *Metrics) IncCallbackRetryScheduled() {
	if m == nil {
		return
	}
	m.callbackRetriesTotal.Inc()
}

func (m *Metrics) IncComplaint() {
	if m == nil {
		return
	}
	m.complaintsTotal.Inc()
}

func (m *Metrics) IncWorkerInFlight(queue string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(queue)).Inc()
}

func (m *Metrics) DecWorkerInFlight(queue string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeLabel(queue)).Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
