package runtime

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/stancefeed-backend/internal/jobs/limiter"
	"github.com/yungbote/stancefeed-backend/internal/observability/perf"
)

func newTestContext(t *testing.T, cfg StageConfig, clock *fakeClock) *Context {
	t.Helper()
	tr := perf.Start()
	if clock != nil {
		tr = perf.StartWithClock(clock.Now)
	}
	c, cancel := NewContext(context.Background(), cfg, Deps{}, tr, nil)
	t.Cleanup(cancel)
	return c
}

func TestShouldStopExcludesExternalTime(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext(t, StageConfig{Name: StageCluster, Budget: 100 * time.Millisecond}, clock)

	if c.ShouldStop() {
		t.Fatalf("fresh context must not stop")
	}
	clock.Advance(50 * time.Millisecond)
	if c.ShouldStop() {
		t.Fatalf("50ms of compute is within budget")
	}

	end := c.Tracer.Span(perf.External)
	clock.Advance(200 * time.Millisecond)
	end()
	if c.ShouldStop() {
		t.Fatalf("external time must not count against the budget")
	}

	clock.Advance(60 * time.Millisecond)
	if !c.ShouldStop() {
		t.Fatalf("110ms of non-external time exceeds a 100ms budget")
	}
}

func TestShouldStopCountsDBTime(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext(t, StageConfig{Name: StageIngest, Budget: 100 * time.Millisecond}, clock)

	end := c.Tracer.Span(perf.DB)
	clock.Advance(101 * time.Millisecond)
	end()
	if !c.ShouldStop() {
		t.Fatalf("db time counts against the budget")
	}
}

func TestShouldStopZeroBudgetNeverStops(t *testing.T) {
	clock := newFakeClock()
	c := newTestContext(t, StageConfig{Name: StageIngest}, clock)
	clock.Advance(time.Hour)
	if c.ShouldStop() {
		t.Fatalf("zero budget must not stop")
	}
}

func TestShouldStopAfterWallCeiling(t *testing.T) {
	c := newTestContext(t, StageConfig{Name: StageIngest, Budget: time.Hour, MaxWall: 10 * time.Millisecond}, nil)
	select {
	case <-c.Ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("wall ceiling never fired")
	}
	if !c.ShouldStop() {
		t.Fatalf("ShouldStop must be true once the ceiling passes")
	}
}

func TestContextCarriesTracer(t *testing.T) {
	c := newTestContext(t, StageConfig{Name: StageGenerate}, nil)
	if perf.FromContext(c.Ctx) != c.Tracer {
		t.Fatalf("Ctx must carry the invocation tracer")
	}
	if c.TraceID != c.Tracer.ID() {
		t.Fatalf("trace id mismatch")
	}
	if c.DB() != nil {
		t.Fatalf("DB must be nil without a database")
	}
}

func TestGoRespectsStageConcurrency(t *testing.T) {
	c := newTestContext(t, StageConfig{Name: StageIngest, Concurrency: 2}, nil)

	var running, peak atomic.Int32
	futures := make([]*limiter.Future, 0, 8)
	for i := 0; i < 8; i++ {
		futures = append(futures, c.Go(func(context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}
	if err := limiter.Wait(futures...); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if p := peak.Load(); p > 2 || p < 1 {
		t.Fatalf("peak=%d want 1..2", p)
	}
}

func TestLimitReturnsValues(t *testing.T) {
	c := newTestContext(t, StageConfig{Name: StageCluster, Concurrency: 3}, nil)
	res := Limit(c, func(context.Context) (int, error) { return 42, nil })
	v, err := res.Wait()
	if err != nil || v != 42 {
		t.Fatalf("v=%d err=%v", v, err)
	}
}
