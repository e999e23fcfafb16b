package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

const testSecret = "s3cret"

type recordingSink struct {
	mu   sync.Mutex
	rows []*types.PerfRun
	err  error
}

func (s *recordingSink) Write(_ context.Context, row *types.PerfRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return s.err
}

func (s *recordingSink) Rows() []*types.PerfRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.PerfRun(nil), s.rows...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfigs() []StageConfig {
	return []StageConfig{
		{Name: StageIngest, Secret: testSecret, Budget: 2 * time.Second, Concurrency: 4, ChunkSize: 8},
		{Name: StageCluster, Secret: testSecret, Budget: time.Second, Concurrency: 3, ChunkSize: 25},
		{Name: StageGenerate, Secret: testSecret, Budget: 2 * time.Second, Concurrency: 3, ChunkSize: 6},
	}
}

func newTestRouter(t *testing.T, reg *Registry, sink MetricsSink, opts ...HandlerOption) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(logger.NewNop(), reg, testConfigs(), Deps{}, NewEmitter(sink, nil, nil, time.Second), nil, opts...)
	r := gin.New()
	for _, s := range h.Stages() {
		r.Any("/functions/v1/"+s, h.Stage(s))
	}
	return r
}

func invoke(r http.Handler, method, stage, secret, body string) (*httptest.ResponseRecorder, map[string]any) {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/functions/v1/"+stage, rd)
	if secret != "" {
		req.Header.Set(HeaderCronSecret, secret)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestStageRejectsNonPost(t *testing.T) {
	called := false
	reg := NewRegistry()
	_ = reg.Register(Func(StageIngest, func(*Context) (Result, error) {
		called = true
		return Result{}, nil
	}))
	sink := &recordingSink{}
	r := newTestRouter(t, reg, sink)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		rec, body := invoke(r, method, StageIngest, testSecret, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: status=%d want 405", method, rec.Code)
		}
		if body["ok"] != false || body["error"] != "Method Not Allowed" {
			t.Fatalf("%s: body=%v", method, body)
		}
		if rec.Header().Get(HeaderTraceID) != "" {
			t.Fatalf("%s: trace id must not be issued", method)
		}
	}
	if called {
		t.Fatalf("stage logic ran for a rejected method")
	}
	if n := len(sink.Rows()); n != 0 {
		t.Fatalf("metrics rows=%d want 0", n)
	}
}

func TestStageRejectsBadSecret(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRouter(t, NewRegistry(), sink)

	for _, secret := range []string{"", "wrong", testSecret + "x"} {
		rec, body := invoke(r, http.MethodPost, StageGenerate, secret, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("secret=%q: status=%d want 401", secret, rec.Code)
		}
		if body["ok"] != false || body["error"] != "Unauthorized" {
			t.Fatalf("secret=%q: body=%v", secret, body)
		}
	}
	if n := len(sink.Rows()); n != 0 {
		t.Fatalf("metrics rows=%d want 0", n)
	}
}

func TestStageEmptyConfiguredSecretRejectsEverything(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &recordingSink{}
	h := NewHandler(logger.NewNop(), NewRegistry(), []StageConfig{{Name: StageCluster}}, Deps{}, NewEmitter(sink, nil, nil, 0), nil)
	r := gin.New()
	r.Any("/functions/v1/cluster", h.Stage(StageCluster))

	for _, secret := range []string{"", "anything"} {
		rec, _ := invoke(r, http.MethodPost, StageCluster, secret, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("secret=%q: status=%d want 401", secret, rec.Code)
		}
	}
	if n := len(sink.Rows()); n != 0 {
		t.Fatalf("metrics rows=%d want 0", n)
	}
}

func TestStageHappyPathKeepsAllowListedKeys(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Func(StageCluster, func(*Context) (Result, error) {
		return Result{
			"clusters": 2,
			"items":    5,
			"updated":  5,
			"skipped":  0,
			"debug":    "internal",
			"inserted": 9,
			"nested":   map[string]any{"a": 1},
		}, nil
	}))
	sink := &recordingSink{}
	r := newTestRouter(t, reg, sink)

	rec, body := invoke(r, http.MethodPost, StageCluster, testSecret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if body["ok"] != true {
		t.Fatalf("ok=%v", body["ok"])
	}
	traceID, _ := body["traceId"].(string)
	if traceID == "" || rec.Header().Get(HeaderTraceID) != traceID {
		t.Fatalf("header trace id %q != body trace id %q", rec.Header().Get(HeaderTraceID), traceID)
	}
	if _, ok := body["duration_ms"].(float64); !ok {
		t.Fatalf("duration_ms missing: %v", body)
	}
	result, _ := body["result"].(map[string]any)
	want := map[string]float64{"clusters": 2, "items": 5, "updated": 5, "skipped": 0}
	if len(result) != len(want) {
		t.Fatalf("result=%v want keys %v", result, want)
	}
	for k, v := range want {
		if result[k] != v {
			t.Fatalf("result[%s]=%v want %v", k, result[k], v)
		}
	}

	rows := sink.Rows()
	if len(rows) != 1 {
		t.Fatalf("metrics rows=%d want 1", len(rows))
	}
	row := rows[0]
	if !row.OK || row.Stage != StageCluster || row.TraceID != traceID || row.Items != 5 {
		t.Fatalf("unexpected row: %+v", row)
	}
	var stored map[string]any
	if err := json.Unmarshal(row.Result, &stored); err != nil || len(stored) != len(want) {
		t.Fatalf("row result=%s err=%v", row.Result, err)
	}
}

func TestStageLogicErrorReturns500(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Func(StageGenerate, func(*Context) (Result, error) {
		return nil, errors.New("rate limited")
	}))
	sink := &recordingSink{}
	r := newTestRouter(t, reg, sink)

	rec, body := invoke(r, http.MethodPost, StageGenerate, testSecret, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rec.Code)
	}
	if body["ok"] != false || body["error"] != "rate limited" {
		t.Fatalf("body=%v", body)
	}
	if body["traceId"] == "" || body["traceId"] != rec.Header().Get(HeaderTraceID) {
		t.Fatalf("trace id mismatch: body=%v header=%q", body["traceId"], rec.Header().Get(HeaderTraceID))
	}
	rows := sink.Rows()
	if len(rows) != 1 || rows[0].OK || rows[0].Note != "rate limited" {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestStagePanicReturns500(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(Func(StageIngest, func(*Context) (Result, error) {
		panic("feed exploded")
	}))
	sink := &recordingSink{}
	r := newTestRouter(t, reg, sink)

	rec, body := invoke(r, http.MethodPost, StageIngest, testSecret, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rec.Code)
	}
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "feed exploded") {
		t.Fatalf("error=%q", msg)
	}
	rows := sink.Rows()
	if len(rows) != 1 || rows[0].OK {
		t.Fatalf("rows=%+v", rows)
	}
}

func TestStageWithoutLogicUsesNoop(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRouter(t, NewRegistry(), sink)

	rec, body := invoke(r, http.MethodPost, StageIngest, testSecret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	result, _ := body["result"].(map[string]any)
	for _, k := range AllowedKeys(StageIngest) {
		if result[k] != float64(0) {
			t.Fatalf("result[%s]=%v want 0", k, result[k])
		}
	}
	if len(sink.Rows()) != 1 {
		t.Fatalf("noop invocation must still be metered")
	}
}

func TestStageSinkFailureStillSucceeds(t *testing.T) {
	sink := &recordingSink{err: errors.New("db down")}
	r := newTestRouter(t, NewRegistry(), sink)

	rec, body := invoke(r, http.MethodPost, StageCluster, testSecret, "")
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("status=%d body=%v", rec.Code, body)
	}
}

func TestStageBodyIsDiagnosticOnly(t *testing.T) {
	var gotBody string
	reg := NewRegistry()
	_ = reg.Register(Func(StageGenerate, func(c *Context) (Result, error) {
		gotBody = string(c.Body)
		return Result{"drafts_created": 1}, nil
	}))
	r := newTestRouter(t, reg, &recordingSink{})

	rec, _ := invoke(r, http.MethodPost, StageGenerate, testSecret, `{"limit": -1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if gotBody != `{"limit": -1}` {
		t.Fatalf("body=%q", gotBody)
	}
}

func TestStageReportsExternalTime(t *testing.T) {
	clock := newFakeClock()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clock.Advance(150 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	reg := NewRegistry()
	_ = reg.Register(Func(StageIngest, func(c *Context) (Result, error) {
		req, _ := http.NewRequestWithContext(c.Ctx, http.MethodGet, upstream.URL, nil)
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		clock.Advance(20 * time.Millisecond)
		return Result{"fetched": 1}, nil
	}))
	sink := &recordingSink{}
	r := newTestRouter(t, reg, sink, WithClock(clock.Now))

	rec, body := invoke(r, http.MethodPost, StageIngest, testSecret, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	if body["external_ms"] != float64(150) || body["duration_ms"] != float64(170) {
		t.Fatalf("timings=%v", body)
	}
	if _, ok := body["db_ms"]; ok {
		t.Fatalf("db_ms must be omitted when no db time was recorded")
	}
	rows := sink.Rows()
	if len(rows) != 1 || rows[0].ExternalMs != 150 || rows[0].DBMs != 0 || rows[0].ComputeMs != 20 {
		t.Fatalf("rows=%+v", rows)
	}
}
