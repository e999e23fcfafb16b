package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/jobs/limiter"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/httpx"
)

type stats struct {
	sources, fetched, inserted, duplicates atomic.Int64
	disabled, skipped, failed, errors      atomic.Int64
}

func (s *stats) result() jobrt.Result {
	return jobrt.Result{
		"sources":    s.sources.Load(),
		"fetched":    s.fetched.Load(),
		"inserted":   s.inserted.Load(),
		"duplicates": s.duplicates.Load(),
		"disabled":   s.disabled.Load(),
		"skipped":    s.skipped.Load(),
		"failed":     s.failed.Load(),
		"errors":     s.errors.Load(),
	}
}

/*
Run polls due sources and stores new entries.
	- sources are taken least recently fetched first, in chunks of ChunkSize
	- each source is one limiter task; a failing source never fails the run
	- once ShouldStop() is true, untouched sources are counted as skipped
*/
func (p *Pipeline) Run(jc *jobrt.Context) (jobrt.Result, error) {
	sources, err := p.sources.ListDue(jc.DBC(), p.cfg.SourceBatch)
	if err != nil {
		return nil, fmt.Errorf("list due sources: %w", err)
	}

	var st stats
	st.sources.Store(int64(len(sources)))
	for _, chunk := range jobrt.Chunk(sources, jc.ChunkSize) {
		if jc.ShouldStop() {
			st.skipped.Add(int64(len(chunk)))
			continue
		}
		futures := make([]*limiter.Future, 0, len(chunk))
		for _, src := range chunk {
			src := src
			futures = append(futures, jc.Go(func(ctx context.Context) error {
				if jc.ShouldStop() {
					st.skipped.Add(1)
					return nil
				}
				p.ingestSource(ctx, jc, src, &st)
				return nil
			}))
		}
		if err := limiter.Wait(futures...); err != nil {
			tally(err, &st)
			jc.Log.Error("ingest tasks failed", "error", err)
		}
	}

	p.log.Debug("ingest finished", "trace_id", jc.TraceID, "inserted", st.inserted.Load())
	return st.result(), nil
}

func (p *Pipeline) ingestSource(ctx context.Context, jc *jobrt.Context, src *types.Source, st *stats) {
	dbc := dbctx.Context{Ctx: ctx}
	log := jc.Log.With("source_id", src.ID, "source_url", src.URL)

	entries, err := p.fetch(ctx, jc.HTTP, src)
	var tooLarge *feedTooLargeError
	if errors.As(err, &tooLarge) {
		st.failed.Add(1)
		log.Warn("source feed over size cap", "max_bytes", tooLarge.limit)
		if rerr := p.sources.RecordWarning(dbc, src.ID, err.Error(), p.now()); rerr != nil {
			st.errors.Add(1)
			log.Error("record source warning", "error", rerr)
		}
		return
	}
	if err != nil {
		st.failed.Add(1)
		log.Warn("source fetch failed", "error", err)
		disabled, rerr := p.sources.RecordFailure(dbc, src.ID, httpx.Truncate(err.Error(), 500), p.now(), p.cfg.MaxConsecutiveFailures)
		if rerr != nil {
			st.errors.Add(1)
			log.Error("record source failure", "error", rerr)
		}
		if disabled {
			st.disabled.Add(1)
			log.Warn("source disabled after consecutive failures", "max", p.cfg.MaxConsecutiveFailures)
		}
		return
	}
	st.fetched.Add(int64(len(entries)))

	items := p.buildItems(src, entries)
	st.duplicates.Add(int64(len(entries) - len(items)))
	fps := make([]string, 0, len(items))
	for _, it := range items {
		fps = append(fps, it.Fingerprint)
	}
	unseen, err := p.seen.Unseen(ctx, src.ID, fps)
	if err != nil {
		log.Warn("seen cache unavailable", "error", err)
		unseen = fps
	}
	fresh := filterItems(items, unseen)
	st.duplicates.Add(int64(len(items) - len(fresh)))

	inserted, err := p.items.InsertNew(dbc, fresh)
	if err != nil {
		st.errors.Add(1)
		log.Error("insert items", "error", err)
		return
	}
	st.inserted.Add(inserted)
	st.duplicates.Add(int64(len(fresh)) - inserted)

	if err := p.seen.Mark(ctx, src.ID, unseen); err != nil {
		log.Warn("seen cache mark failed", "error", err)
	}
	if err := p.sources.RecordSuccess(dbc, src.ID, p.now()); err != nil {
		st.errors.Add(1)
		log.Error("record source success", "error", err)
	}
}

// buildItems fingerprints entries and drops in-batch repeats.
func (p *Pipeline) buildItems(src *types.Source, entries []entry) []*types.IngestedItem {
	seen := make(map[string]bool, len(entries))
	out := make([]*types.IngestedItem, 0, len(entries))
	for _, e := range entries {
		fp := Fingerprint(e.Link, e.GUID, e.Title)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		title := e.Title
		if title == "" {
			title = e.Link
		}
		out = append(out, &types.IngestedItem{
			SourceID:    src.ID,
			Fingerprint: fp,
			URL:         e.Link,
			Title:       httpx.Truncate(title, 500),
			Summary:     httpx.Truncate(stripTags(e.Summary), 4000),
			PublishedAt: e.Published,
			Status:      types.ItemStatusNew,
		})
	}
	return out
}

func filterItems(items []*types.IngestedItem, keep []string) []*types.IngestedItem {
	if len(keep) == len(items) {
		return items
	}
	want := make(map[string]bool, len(keep))
	for _, fp := range keep {
		want[fp] = true
	}
	out := make([]*types.IngestedItem, 0, len(keep))
	for _, it := range items {
		if want[it.Fingerprint] {
			out = append(out, it)
		}
	}
	return out
}

// tally splits joined task errors into skipped (cancelled before or during
// admission) and failed (panics).
func tally(err error, st *stats) {
	errs := []error{err}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		errs = u.Unwrap()
	}
	for _, e := range errs {
		if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
			st.skipped.Add(1)
		} else {
			st.failed.Add(1)
		}
	}
}
