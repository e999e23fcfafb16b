package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/stancefeed-backend/internal/data/repos/testutil"
	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
)

func TestItemInsertNewSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewItemRepo(db, testutil.Logger(t))
	src := testutil.SeedSource(t, ctx, db, types.SourceKindRSS, "https://news.example.com/rss")
	dbc := dbctx.Context{Ctx: ctx}

	batch := func() []*types.IngestedItem {
		return []*types.IngestedItem{
			{SourceID: src.ID, Fingerprint: "a", Title: "A"},
			{SourceID: src.ID, Fingerprint: "b", Title: "B"},
		}
	}
	n, err := repo.InsertNew(dbc, batch())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if n != 2 {
		t.Fatalf("inserted=%d want 2", n)
	}
	n, err = repo.InsertNew(dbc, append(batch(), &types.IngestedItem{SourceID: src.ID, Fingerprint: "c", Title: "C"}))
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if n != 1 {
		t.Fatalf("second insert=%d want 1", n)
	}
	if c, _ := repo.CountByStatus(dbc, types.ItemStatusNew); c != 3 {
		t.Fatalf("new items=%d want 3", c)
	}
}

func TestItemTransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewItemRepo(db, testutil.Logger(t))
	src := testutil.SeedSource(t, ctx, db, types.SourceKindRSS, "https://news.example.com/rss")
	it := testutil.SeedItem(t, ctx, db, src.ID, "Title", "", time.Now())
	dbc := dbctx.Context{Ctx: ctx}
	topicID := uuid.New()

	ok, err := repo.MarkClustered(dbc, it.ID, topicID, time.Now())
	if err != nil || !ok {
		t.Fatalf("first transition: ok=%v err=%v", ok, err)
	}
	ok, err = repo.MarkClustered(dbc, it.ID, uuid.New(), time.Now())
	if err != nil || ok {
		t.Fatalf("repeat transition must be a no-op: ok=%v err=%v", ok, err)
	}
	ok, err = repo.MarkRejected(dbc, it.ID, time.Now())
	if err != nil || ok {
		t.Fatalf("clustered item must not be rejected: ok=%v err=%v", ok, err)
	}
	items, err := repo.ListByTopic(dbc, topicID, 10)
	if err != nil || len(items) != 1 {
		t.Fatalf("list by topic: %d %v", len(items), err)
	}
}

func TestSourceFailureDisablesAfterThreshold(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewSourceRepo(db, testutil.Logger(t))
	src := testutil.SeedSource(t, ctx, db, types.SourceKindRSS, "https://flaky.example.com/rss")
	dbc := dbctx.Context{Ctx: ctx}

	for i := 1; i <= 3; i++ {
		disabled, err := repo.RecordFailure(dbc, src.ID, "timeout", time.Now(), 3)
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if disabled != (i == 3) {
			t.Fatalf("attempt %d: disabled=%v", i, disabled)
		}
	}
	got, err := repo.GetByID(dbc, src.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Enabled || got.FailureCount != 3 || got.LastError != "timeout" {
		t.Fatalf("unexpected source state: %+v", got)
	}
	due, err := repo.ListDue(dbc, 10)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("disabled source must not be due")
	}
}

func TestSourceWarningKeepsFailureStreak(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewSourceRepo(db, testutil.Logger(t))
	src := testutil.SeedSource(t, ctx, db, types.SourceKindRSS, "https://huge.example.com/rss")
	dbc := dbctx.Context{Ctx: ctx}

	if _, err := repo.RecordFailure(dbc, src.ID, "timeout", time.Now(), 3); err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if err := repo.RecordWarning(dbc, src.ID, "feed exceeds 10 bytes", time.Now()); err != nil {
		t.Fatalf("record warning: %v", err)
	}
	got, err := repo.GetByID(dbc, src.ID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Enabled || got.ConsecutiveFailures != 1 || got.FailureCount != 1 || got.LastError != "feed exceeds 10 bytes" || got.LastFetchedAt == nil {
		t.Fatalf("unexpected source state: %+v", got)
	}
}

func TestSourceListDueOrdersNeverFetchedFirst(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewSourceRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}
	fetched := testutil.SeedSource(t, ctx, db, types.SourceKindRSS, "https://a.example.com/rss")
	fresh := testutil.SeedSource(t, ctx, db, types.SourceKindRSS, "https://b.example.com/rss")
	if err := repo.RecordSuccess(dbc, fetched.ID, time.Now()); err != nil {
		t.Fatalf("record success: %v", err)
	}
	due, err := repo.ListDue(dbc, 1)
	if err != nil || len(due) != 1 {
		t.Fatalf("list due: %d %v", len(due), err)
	}
	if due[0].ID != fresh.ID {
		t.Fatalf("expected never-fetched source first")
	}
}

func TestTopicGenerationBookkeeping(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewTopicRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}
	tp := testutil.SeedTopic(t, ctx, db, "Transit fares", "transit fares city", 3)

	ready, err := repo.ListReadyForGeneration(dbc, 2, 10)
	if err != nil || len(ready) != 1 {
		t.Fatalf("ready: %d %v", len(ready), err)
	}
	ok, err := repo.MarkGenerated(dbc, tp.ID, 3, time.Now())
	if err != nil || !ok {
		t.Fatalf("mark generated: %v %v", ok, err)
	}
	ready, _ = repo.ListReadyForGeneration(dbc, 2, 10)
	if len(ready) != 0 {
		t.Fatalf("generated topic must not be ready again")
	}
	if err := repo.AttachItem(dbc, tp.ID, "transit fares city bus", time.Now()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	ready, _ = repo.ListReadyForGeneration(dbc, 2, 10)
	if len(ready) != 1 || ready[0].ItemCount != 4 {
		t.Fatalf("topic with new items must be ready: %+v", ready)
	}
}

func TestQuestionUpsertBumpsRevision(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	repo := NewQuestionRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}
	topicID := uuid.New()

	created, err := repo.Upsert(dbc, &types.QuestionDraft{TopicID: topicID, Question: "Q1?", Options: datatypes.JSON(`["Yes","No"]`)})
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	created, err = repo.Upsert(dbc, &types.QuestionDraft{TopicID: topicID, Question: "Q2?", Options: datatypes.JSON(`["Yes","No"]`)})
	if err != nil || created {
		t.Fatalf("second upsert: created=%v err=%v", created, err)
	}
	got, err := repo.GetByTopic(dbc, topicID)
	if err != nil || got == nil {
		t.Fatalf("get: %v", err)
	}
	if got.Question != "Q2?" || got.Revision != 2 {
		t.Fatalf("unexpected draft: %+v", got)
	}
	if n, _ := repo.Count(dbc); n != 1 {
		t.Fatalf("drafts=%d want 1", n)
	}
}
