package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestObserveStageExposesSeries(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveStage(StageObservation{
		Stage:    "cluster",
		OK:       true,
		Duration: 250 * time.Millisecond,
		Spans:    map[string]time.Duration{"db": 40 * time.Millisecond},
		Items:    5,
	})
	m.IncSinkFailure("cluster")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`sf_stage_invocations_total{outcome="ok",stage="cluster"} 1`,
		`sf_stage_items_total{stage="cluster"} 5`,
		`sf_metrics_sink_failures_total{stage="cluster"} 1`,
		`sf_stage_span_seconds_count{category="db",stage="cluster"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage(StageObservation{Stage: "ingest"})
	m.ObserveAPI("POST", "/functions/v1/ingest", "200", time.Millisecond)
	m.IncSinkFailure("ingest")
	m.ApiInflightInc()
	m.ApiInflightDec()
}
