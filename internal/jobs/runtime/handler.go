package runtime

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/stancefeed-backend/internal/jobs/limiter"
	"github.com/yungbote/stancefeed-backend/internal/observability"
	"github.com/yungbote/stancefeed-backend/internal/observability/perf"
	"github.com/yungbote/stancefeed-backend/internal/platform/httpx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

const (
	HeaderCronSecret = "x-cron-secret"
	HeaderTraceID    = "x-trace-id"

	bodyPeekLimit   = 4 << 10
	bodyPreviewLen  = 200
	stackPreviewLen = 2000
)

// Handler serves the stage endpoints. One Handler covers every configured
// stage; each request is an independent invocation.
type Handler struct {
	log      *logger.Logger
	registry *Registry
	configs  map[string]StageConfig
	deps     Deps
	emitter  *Emitter
	metrics  *observability.Metrics
	otel     trace.Tracer
	clock    func() time.Time
}

type HandlerOption func(*Handler)

// WithClock swaps the tracer clock, for tests.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.clock = now }
}

func NewHandler(log *logger.Logger, registry *Registry, configs []StageConfig, deps Deps, emitter *Emitter, metrics *observability.Metrics, opts ...HandlerOption) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	h := &Handler{
		log:      log.With("component", "StageRuntime"),
		registry: registry,
		configs:  make(map[string]StageConfig, len(configs)),
		deps:     deps,
		emitter:  emitter,
		metrics:  metrics,
		otel:     otel.Tracer("stancefeed/runtime"),
		clock:    time.Now,
	}
	for _, cfg := range configs {
		h.configs[cfg.Name] = cfg.normalized()
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Stages lists the configured stage names.
func (h *Handler) Stages() []string {
	out := make([]string, 0, len(h.configs))
	for _, s := range KnownStages() {
		if _, ok := h.configs[s]; ok {
			out = append(out, s)
		}
	}
	for s := range h.configs {
		if _, known := defaults[s]; !known {
			out = append(out, s)
		}
	}
	return out
}

// Stage returns the gin handler for one stage endpoint.
func (h *Handler) Stage(stage string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Header("Allow", http.MethodPost)
			c.JSON(http.StatusMethodNotAllowed, gin.H{"ok": false, "error": "Method Not Allowed"})
			return
		}
		cfg, ok := h.configs[stage]
		if !ok || !secretMatches(cfg.Secret, c.GetHeader(HeaderCronSecret)) {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Unauthorized"})
			return
		}
		h.invoke(c, cfg)
	}
}

func (h *Handler) invoke(c *gin.Context, cfg StageConfig) {
	tracer := perf.StartWithClock(h.clock)
	traceID := tracer.ID()
	c.Header(HeaderTraceID, traceID)
	log := h.log.With("stage", cfg.Name, "trace_id", traceID)

	reqCtx, span := h.otel.Start(c.Request.Context(), "stage."+cfg.Name, trace.WithAttributes(
		attribute.String("stage", cfg.Name),
		attribute.String("stage.trace_id", traceID),
	))
	defer span.End()

	jc, cancel := NewContext(reqCtx, cfg, h.deps, tracer, log)
	defer cancel()
	jc.SetBody(peekBody(c.Request, log))

	log.Info("Stage invocation started",
		"budget_ms", cfg.Budget.Milliseconds(),
		"concurrency", cfg.Concurrency,
		"chunk_size", cfg.ChunkSize,
	)

	result, err := h.run(jc)
	if err != nil {
		msg := err.Error()
		summary := tracer.Finish(map[string]any{"error": msg})
		var pe *limiter.PanicError
		if errors.As(err, &pe) {
			log.Error("Stage invocation panicked", "error", msg, "stack", httpx.Truncate(string(pe.Stack), stackPreviewLen))
		} else {
			log.Error("Stage invocation failed", "error", msg, "duration_ms", summary.DurationMs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		h.observe(cfg.Name, tracer, summary, false, 0)
		h.emitter.Emit(reqCtx, Row(cfg.Name, summary, false, msg, nil))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "traceId": traceID, "error": msg})
		return
	}

	clean := Summarize(cfg.Name, result)
	summary := tracer.Finish(clean)
	items := ItemCount(cfg.Name, clean)
	h.observe(cfg.Name, tracer, summary, true, items)
	h.emitter.Emit(reqCtx, Row(cfg.Name, summary, true, "", clean))
	log.Info("Stage invocation completed", keyvals(summary.Fields())...)

	c.JSON(http.StatusOK, successBody(summary, clean))
}

// run is the single recovery point for stage logic.
func (h *Handler) run(jc *Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &limiter.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	res, err = h.registry.Resolve(jc.Stage).Run(jc)
	return res, err
}

func (h *Handler) observe(stage string, t *perf.Tracer, s perf.Summary, ok bool, items int64) {
	if h.metrics == nil {
		return
	}
	total := time.Duration(s.DurationMs) * time.Millisecond
	external, db := t.Spent(perf.External), t.Spent(perf.DB)
	compute := time.Duration(computeMs(s)) * time.Millisecond
	h.metrics.ObserveStage(observability.StageObservation{
		Stage:    stage,
		OK:       ok,
		Duration: total,
		Spans: map[string]time.Duration{
			string(perf.External): external,
			string(perf.DB):       db,
			string(perf.Compute):  compute,
		},
		Items: items,
	})
}

// computeMs is implicit (total minus external and db) unless logic opened
// explicit compute spans.
func computeMs(s perf.Summary) int64 {
	if c := perf.Int64(s.ComputeMs); c > 0 {
		return c
	}
	return max(s.DurationMs-perf.Int64(s.ExternalMs)-perf.Int64(s.DBMs), 0)
}

// secretMatches is false whenever the configured secret is empty.
func secretMatches(want, got string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// peekBody reads at most bodyPeekLimit bytes for diagnostics. Read errors are
// logged at debug and otherwise ignored.
func peekBody(r *http.Request, log *logger.Logger) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, bodyPeekLimit))
	if err != nil {
		log.Debug("request body unreadable", "error", err)
		return nil
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(b), r.Body))
	if len(b) > 0 {
		log.Debug("request body", "preview", httpx.Truncate(string(b), bodyPreviewLen))
	}
	return b
}

func successBody(s perf.Summary, result Result) gin.H {
	body := gin.H{
		"ok":          true,
		"traceId":     s.TraceID,
		"duration_ms": s.DurationMs,
		"result":      result,
	}
	if s.ExternalMs != nil {
		body["external_ms"] = *s.ExternalMs
	}
	if s.DBMs != nil {
		body["db_ms"] = *s.DBMs
	}
	if s.ComputeMs != nil {
		body["compute_ms"] = *s.ComputeMs
	}
	return body
}

func keyvals(fields map[string]any) []any {
	kv := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	return kv
}
