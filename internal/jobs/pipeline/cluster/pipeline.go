package cluster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/jobs/limiter"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
)

var errAlreadyHandled = errors.New("item no longer new")

type candidate struct {
	topic    *types.TopicDraft
	keywords []string
}

type stats struct {
	clusters, items, updated, rejected, skipped, failed, errors int64
}

func (s stats) result() jobrt.Result {
	return jobrt.Result{
		"clusters": s.clusters,
		"items":    s.items,
		"updated":  s.updated,
		"rejected": s.rejected,
		"skipped":  s.skipped,
		"failed":   s.failed,
		"errors":   s.errors,
	}
}

/*
Run assigns new items to topics.
	- keywords for a chunk are extracted concurrently through the limiter
	- assignment is sequential so two items in one run never race to create
	  the same topic
	- each assignment (topic create, item mark, topic attach) is one transaction;
	  the item mark is conditional on status='new', so reruns are no-ops
*/
func (p *Pipeline) Run(jc *jobrt.Context) (jobrt.Result, error) {
	db := jc.DB()
	if db == nil {
		return nil, fmt.Errorf("cluster: database not configured")
	}
	items, err := p.items.ListNew(jc.DBC(), p.cfg.ItemBatch)
	if err != nil {
		return nil, fmt.Errorf("list new items: %w", err)
	}
	if len(items) == 0 {
		return stats{}.result(), nil
	}
	recent, err := p.topics.ListRecent(jc.DBC(), p.now().Add(-p.cfg.TopicWindow), p.cfg.TopicLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent topics: %w", err)
	}
	cands := make([]*candidate, 0, len(recent))
	for _, t := range recent {
		cands = append(cands, &candidate{topic: t, keywords: t.KeywordList()})
	}

	var st stats
	for _, chunk := range jobrt.Chunk(items, jc.ChunkSize) {
		if jc.ShouldStop() {
			st.skipped += int64(len(chunk))
			continue
		}
		kws := make([]*limiter.Result[[]string], len(chunk))
		for i, it := range chunk {
			it := it
			kws[i] = jobrt.Limit(jc, func(context.Context) ([]string, error) {
				return Keywords(it.Title+" "+it.Title+" "+it.Summary, p.cfg.MaxKeywords), nil
			})
		}
		for i, it := range chunk {
			words, err := kws[i].Wait()
			if err != nil {
				st.failed++
				jc.Log.Warn("keyword extraction failed", "item_id", it.ID, "error", err)
				continue
			}
			st.items++
			p.assign(jc, db, it, words, &cands, &st)
		}
	}
	return st.result(), nil
}

func (p *Pipeline) assign(jc *jobrt.Context, db *gorm.DB, it *types.IngestedItem, words []string, cands *[]*candidate, st *stats) {
	now := p.now()
	if len(words) < p.cfg.MinKeywords {
		ok, err := p.items.MarkRejected(jc.DBC(), it.ID, now)
		switch {
		case err != nil:
			st.errors++
			jc.Log.Error("mark item rejected", "item_id", it.ID, "error", err)
		case ok:
			st.rejected++
		default:
			st.skipped++
		}
		return
	}

	best, score := p.bestMatch(words, *cands)
	var created *candidate
	transitioned := false
	err := db.Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: jc.Ctx, Tx: tx}
		target := best
		if target == nil {
			t := &types.TopicDraft{
				Title:      it.Title,
				Keywords:   strings.Join(words, " "),
				Status:     types.TopicStatusOpen,
				LastItemAt: &now,
			}
			if err := p.topics.Create(dbc, t); err != nil {
				return fmt.Errorf("create topic: %w", err)
			}
			created = &candidate{topic: t, keywords: words}
			target = created
		}
		ok, err := p.items.MarkClustered(dbc, it.ID, target.topic.ID, now)
		if err != nil {
			return fmt.Errorf("mark clustered: %w", err)
		}
		if !ok {
			// Another run got here first; roll back any topic we created.
			return errAlreadyHandled
		}
		merged := Merge(target.keywords, words, p.cfg.MaxKeywords)
		if err := p.topics.AttachItem(dbc, target.topic.ID, strings.Join(merged, " "), now); err != nil {
			return fmt.Errorf("attach item: %w", err)
		}
		target.keywords = merged
		transitioned = true
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyHandled):
		st.skipped++
	case err != nil:
		st.errors++
		st.failed++
		jc.Log.Error("cluster assignment failed", "item_id", it.ID, "error", err)
	case transitioned:
		st.updated++
		if created != nil {
			st.clusters++
			*cands = append(*cands, created)
		} else {
			jc.Log.Debug("item joined topic", "item_id", it.ID, "topic_id", best.topic.ID, "score", score)
		}
	}
}

func (p *Pipeline) bestMatch(words []string, cands []*candidate) (*candidate, float64) {
	var best *candidate
	bestScore := 0.0
	for _, c := range cands {
		s := p.matcher.Similarity(words, c.keywords)
		if s >= p.cfg.MinSimilarity && s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}
