package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	"github.com/yungbote/stancefeed-backend/internal/data/repos/testutil"
	types "github.com/yungbote/stancefeed-backend/internal/domain"
	apphttp "github.com/yungbote/stancefeed-backend/internal/http"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
)

func TestWiredStagesChainThroughTables(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()

	cfg := Config{MetricsSink: SinkGorm, MetricsTimeout: time.Second}
	for _, name := range jobrt.KnownStages() {
		cfg.Stages = append(cfg.Stages, jobrt.StageConfig{Name: name, Secret: "s3cret", Concurrency: 2, ChunkSize: 4})
	}
	rs := repos.New(db, log)
	registry, err := wirePipelines(log, cfg, rs, nil)
	if err != nil {
		t.Fatalf("wire pipelines: %v", err)
	}
	stages := jobrt.NewHandler(log, registry, cfg.Stages, jobrt.Deps{DB: db},
		jobrt.NewEmitter(wireSink(log, cfg, rs), log, nil, cfg.MetricsTimeout), nil)
	router := apphttp.NewRouter(apphttp.RouterConfig{
		Log:           log,
		StageHandler:  stages,
		HealthHandler: wireHealth(db, nil),
	})

	src := testutil.SeedSource(t, ctx, db, types.SourceKindRSS, "https://news.example.com/wire")
	base := time.Now().Add(-time.Hour)
	for i, title := range []string{
		"Council debates congestion pricing downtown tolls",
		"School board weighs four-day week",
		"Congestion pricing tolls: council debates downtown plan",
		"School board four-day week vote",
		"Downtown congestion pricing tolls council",
	} {
		testutil.SeedItem(t, ctx, db, src.ID, title, "", base.Add(time.Duration(i)*time.Minute))
	}

	call := func(stage string) map[string]any {
		t.Helper()
		req := httptest.NewRequest(http.MethodPost, apphttp.StagePrefix+stage, nil)
		req.Header.Set(jobrt.HeaderCronSecret, "s3cret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d body=%s", stage, rec.Code, rec.Body.String())
		}
		var body struct {
			Result map[string]any `json:"result"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body.Result
	}

	if res := call(jobrt.StageCluster); res["clusters"] != float64(2) || res["items"] != float64(5) {
		t.Fatalf("cluster result = %v", res)
	}
	if res := call(jobrt.StageGenerate); res["drafts_created"] != float64(2) {
		t.Fatalf("generate result = %v", res)
	}

	runs, err := rs.Perf.ListRecent(dbctx.Context{Ctx: ctx}, "", 10)
	if err != nil {
		t.Fatalf("perf rows: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("perf rows = %d, want 2", len(runs))
	}
	for _, r := range runs {
		if !r.OK || r.Items == 0 {
			t.Fatalf("unexpected perf row %+v", r)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d %s", rec.Code, rec.Body.String())
	}
}
