package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/observability"
	"github.com/yungbote/stancefeed-backend/internal/observability/perf"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/httpx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

// MetricsSink persists one metrics row.
type MetricsSink interface {
	Write(ctx context.Context, row *types.PerfRun) error
}

// GormSink writes rows straight into pipeline_perf.
type GormSink struct {
	Repo repos.PerfRepo
}

func (s GormSink) Write(ctx context.Context, row *types.PerfRun) error {
	return s.Repo.Create(dbctx.Context{Ctx: ctx}, row)
}

// RESTSink posts rows to a PostgREST endpoint: {BaseURL}/rest/v1/pipeline_perf.
type RESTSink struct {
	BaseURL    string
	ServiceKey string
	Client     *http.Client
}

func (s RESTSink) Write(ctx context.Context, row *types.PerfRun) error {
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		return fmt.Errorf("rest sink: base url not configured")
	}
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("rest sink: encode row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/rest/v1/"+row.TableName(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")
	if s.ServiceKey != "" {
		req.Header.Set("apikey", s.ServiceKey)
		req.Header.Set("Authorization", "Bearer "+s.ServiceKey)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("rest sink: %w", err)
	}
	if err := httpx.CheckStatus(resp); err != nil {
		return fmt.Errorf("rest sink: %w", err)
	}
	return resp.Body.Close()
}

type NopSink struct{}

func (NopSink) Write(context.Context, *types.PerfRun) error { return nil }

// Emitter writes metrics rows on a best-effort basis: failures are logged and
// counted, never returned.
type Emitter struct {
	sink    MetricsSink
	log     *logger.Logger
	metrics *observability.Metrics
	timeout time.Duration
}

func NewEmitter(sink MetricsSink, log *logger.Logger, metrics *observability.Metrics, timeout time.Duration) *Emitter {
	if sink == nil {
		sink = NopSink{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Emitter{sink: sink, log: log.With("component", "MetricsEmitter"), metrics: metrics, timeout: timeout}
}

// Row builds the metrics row for a finished invocation.
func Row(stage string, s perf.Summary, ok bool, note string, summary Result) *types.PerfRun {
	row := &types.PerfRun{
		ID:         uuid.New(),
		Stage:      stage,
		TraceID:    s.TraceID,
		DurationMs: s.DurationMs,
		ExternalMs: perf.Int64(s.ExternalMs),
		DBMs:       perf.Int64(s.DBMs),
		ComputeMs:  computeMs(s),
		Items:      ItemCount(stage, summary),
		OK:         ok,
		Note:       note,
		CreatedAt:  time.Now(),
	}
	if len(summary) > 0 {
		if b, err := json.Marshal(summary); err == nil {
			row.Result = datatypes.JSON(b)
		}
	}
	return row
}

// Emit detaches from the caller's cancellation so a disconnected client does
// not drop the row, but still bounds the write by the emitter timeout.
func (e *Emitter) Emit(ctx context.Context, row *types.PerfRun) {
	if e == nil || row == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if err := e.sink.Write(wctx, row); err != nil {
		e.metrics.IncSinkFailure(row.Stage)
		e.log.Warn("metrics row write failed", "stage", row.Stage, "trace_id", row.TraceID, "error", err)
	}
}
