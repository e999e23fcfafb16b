package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	stageInvocations *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	stageSpan        *prometheus.HistogramVec
	stageItems       *prometheus.CounterVec
	sinkFailures     *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics set, or returns nil when disabled.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		instance = NewMetrics(reg)
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics registers the pipeline collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sf_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sf_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sf_api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		stageInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sf_stage_invocations_total",
			Help: "Authenticated stage invocations by stage and outcome.",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sf_stage_duration_seconds",
			Help:    "Wall-clock duration of stage invocations.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"stage"}),
		stageSpan: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sf_stage_span_seconds",
			Help:    "Accumulated time per span category within one invocation.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"stage", "category"}),
		stageItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sf_stage_items_total",
			Help: "Work items processed by stage.",
		}, []string{"stage"}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sf_metrics_sink_failures_total",
			Help: "Metrics rows that could not be written.",
		}, []string{"stage"}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.stageInvocations, m.stageDuration, m.stageSpan, m.stageItems, m.sinkFailures,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAPI(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// StageObservation is one finished invocation as seen by the runtime.
type StageObservation struct {
	Stage    string
	OK       bool
	Duration time.Duration
	Spans    map[string]time.Duration
	Items    int64
}

func (m *Metrics) ObserveStage(o StageObservation) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !o.OK {
		outcome = "error"
	}
	m.stageInvocations.WithLabelValues(o.Stage, outcome).Inc()
	m.stageDuration.WithLabelValues(o.Stage).Observe(o.Duration.Seconds())
	for cat, d := range o.Spans {
		m.stageSpan.WithLabelValues(o.Stage, cat).Observe(d.Seconds())
	}
	if o.Items > 0 {
		m.stageItems.WithLabelValues(o.Stage).Add(float64(o.Items))
	}
}

func (m *Metrics) IncSinkFailure(stage string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(stage).Inc()
}
