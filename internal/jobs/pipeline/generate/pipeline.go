package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/jobs/limiter"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
)

type stats struct {
	mu                                      sync.Mutex
	created, updated, skipped, failed, errs int64
	attempted                               int64
	firstErr                                error
}

func (s *stats) add(fn func(s *stats)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

// tally books joined limiter errors: tasks cancelled before admission are
// skipped, anything else is a panic inside generateTopic, which has already
// counted the attempt. Callers hold mu.
func (s *stats) tally(err error) {
	errs := []error{err}
	if u, ok := err.(interface{ Unwrap() []error }); ok {
		errs = u.Unwrap()
	}
	for _, e := range errs {
		if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
			s.skipped++
			continue
		}
		s.failed++
		if s.firstErr == nil {
			s.firstErr = e
		}
	}
}

func (s *stats) result() jobrt.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return jobrt.Result{
		"drafts_created": s.created,
		"drafts_updated": s.updated,
		"skipped":        s.skipped,
		"failed":         s.failed,
		"errors":         s.errs,
	}
}

/*
Run drafts stance questions for topics that gained items since their last
draft. A topic is picked up only while item_count > generated_item_count, so a
repeat call with no new items does nothing.

Per-topic failures are counted, not returned. If every attempted topic fails
the run fails with the first error, which usually means the model upstream is
down or throttling.
*/
func (p *Pipeline) Run(jc *jobrt.Context) (jobrt.Result, error) {
	db := jc.DB()
	if db == nil {
		return nil, fmt.Errorf("generate: database not configured")
	}
	topics, err := p.topics.ListReadyForGeneration(jc.DBC(), p.cfg.MinItems, p.cfg.TopicBatch)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	st := &stats{}
	if len(topics) == 0 {
		return st.result(), nil
	}
	gen, err := p.provider(jc.HTTP, jc.Log)
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}

	for _, chunk := range jobrt.Chunk(topics, jc.ChunkSize) {
		if jc.ShouldStop() {
			st.add(func(s *stats) { s.skipped += int64(len(chunk)) })
			continue
		}
		futures := make([]*limiter.Future, 0, len(chunk))
		for _, topic := range chunk {
			topic := topic
			futures = append(futures, jc.Go(func(ctx context.Context) error {
				if jc.ShouldStop() {
					st.add(func(s *stats) { s.skipped++ })
					return nil
				}
				p.generateTopic(ctx, jc, db, gen, topic, st)
				return nil
			}))
		}
		if err := limiter.Wait(futures...); err != nil {
			jc.Log.Error("generate tasks failed", "error", err)
			st.add(func(s *stats) { s.tally(err) })
		}
	}

	st.mu.Lock()
	allFailed := st.attempted > 0 && st.failed >= st.attempted
	firstErr := st.firstErr
	st.mu.Unlock()
	if allFailed && firstErr != nil {
		return nil, firstErr
	}
	return st.result(), nil
}

func (p *Pipeline) generateTopic(ctx context.Context, jc *jobrt.Context, db *gorm.DB, gen Generator, topic *types.TopicDraft, st *stats) {
	log := jc.Log.With("topic_id", topic.ID)
	fail := func(err error, storage bool) {
		st.add(func(s *stats) {
			s.failed++
			if storage {
				s.errs++
			}
			if s.firstErr == nil {
				s.firstErr = err
			}
		})
	}
	st.add(func(s *stats) { s.attempted++ })

	items, err := p.items.ListByTopic(dbctx.Context{Ctx: ctx}, topic.ID, p.cfg.ContextItems)
	if err != nil {
		log.Error("load topic items", "error", err)
		fail(fmt.Errorf("load topic items: %w", err), true)
		return
	}
	draft, err := gen.Generate(ctx, Input{Topic: topic, Items: items})
	if err == nil {
		err = draft.Validate()
	}
	if err != nil {
		log.Warn("question generation failed", "error", err)
		fail(err, false)
		return
	}
	opts, err := json.Marshal(draft.Options)
	if err != nil {
		fail(err, false)
		return
	}

	var created, marked bool
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		var err error
		created, err = p.questions.Upsert(dbc, &types.QuestionDraft{
			TopicID:   topic.ID,
			Question:  draft.Question,
			Options:   datatypes.JSON(opts),
			Rationale: draft.Rationale,
			Model:     draft.Model,
			Status:    types.QuestionStatusDraft,
		})
		if err != nil {
			return fmt.Errorf("upsert question: %w", err)
		}
		marked, err = p.topics.MarkGenerated(dbc, topic.ID, topic.ItemCount, p.now())
		if err != nil {
			return fmt.Errorf("mark generated: %w", err)
		}
		if !marked {
			return errStale
		}
		return nil
	})
	switch {
	case errors.Is(err, errStale):
		st.add(func(s *stats) { s.skipped++; s.attempted-- })
	case err != nil:
		log.Error("store question", "error", err)
		fail(err, true)
	case created:
		st.add(func(s *stats) { s.created++ })
	default:
		st.add(func(s *stats) { s.updated++ })
	}
}

// errStale rolls back a draft when a concurrent run already recorded an equal
// or newer generation for the topic.
var errStale = errors.New("topic generation already recorded")
