// Package perf accounts wall-clock time for a single stage invocation.
//
// A Tracer accumulates durations per Category. Outbound HTTP calls, gorm
// statements and redis commands are attributed automatically once the tracer is
// attached to a request context (see Transport, GormPlugin and RedisHook);
// everything else is implicitly compute time.
package perf

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Category string

const (
	External Category = "external"
	DB       Category = "db"
	Compute  Category = "compute"
)

type Tracer struct {
	id    string
	start time.Time
	now   func() time.Time

	mu    sync.Mutex
	spent map[Category]time.Duration
}

// Summary is the finalized view of one invocation. Category durations are nil
// when nothing was recorded for them.
type Summary struct {
	TraceID    string         `json:"traceId"`
	DurationMs int64          `json:"duration_ms"`
	ExternalMs *int64         `json:"external_ms,omitempty"`
	DBMs       *int64         `json:"db_ms,omitempty"`
	ComputeMs  *int64         `json:"compute_ms,omitempty"`
	Meta       map[string]any `json:"-"`
}

func Start() *Tracer {
	return StartWithClock(time.Now)
}

func StartWithClock(now func() time.Time) *Tracer {
	if now == nil {
		now = time.Now
	}
	return &Tracer{
		id:    uuid.New().String(),
		start: now(),
		now:   now,
		spent: map[Category]time.Duration{},
	}
}

func (t *Tracer) ID() string { return t.id }

func (t *Tracer) StartedAt() time.Time { return t.start }

// Span opens a measurement under cat. The returned func records the elapsed
// time; calling it more than once has no further effect.
func (t *Tracer) Span(cat Category) func() {
	if t == nil {
		return func() {}
	}
	began := t.now()
	var once sync.Once
	return func() {
		once.Do(func() { t.Add(cat, t.now().Sub(began)) })
	}
}

func (t *Tracer) Add(cat Category, d time.Duration) {
	if t == nil || d < 0 {
		return
	}
	t.mu.Lock()
	t.spent[cat] += d
	t.mu.Unlock()
}

func (t *Tracer) Spent(cat Category) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent[cat]
}

func (t *Tracer) Elapsed() time.Duration {
	if t == nil {
		return 0
	}
	return t.now().Sub(t.start)
}

// Finish snapshots the accumulator. It may be called more than once.
func (t *Tracer) Finish(meta map[string]any) Summary {
	s := Summary{
		TraceID:    t.id,
		DurationMs: roundMs(t.Elapsed()),
		Meta:       meta,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.spent[External]; ok {
		s.ExternalMs = msPtr(d)
	}
	if d, ok := t.spent[DB]; ok {
		s.DBMs = msPtr(d)
	}
	if d, ok := t.spent[Compute]; ok {
		s.ComputeMs = msPtr(d)
	}
	return s
}

// Fields flattens the summary and its meta into a single map.
func (s Summary) Fields() map[string]any {
	out := make(map[string]any, len(s.Meta)+5)
	for k, v := range s.Meta {
		out[k] = v
	}
	out["traceId"] = s.TraceID
	out["duration_ms"] = s.DurationMs
	if s.ExternalMs != nil {
		out["external_ms"] = *s.ExternalMs
	}
	if s.DBMs != nil {
		out["db_ms"] = *s.DBMs
	}
	if s.ComputeMs != nil {
		out["compute_ms"] = *s.ComputeMs
	}
	return out
}

func roundMs(d time.Duration) int64 {
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}

func msPtr(d time.Duration) *int64 {
	v := roundMs(d)
	return &v
}

// Int64 dereferences an optional millisecond value.
func Int64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
