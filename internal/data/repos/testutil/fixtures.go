package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
)

func SeedSource(tb testing.TB, ctx context.Context, tx *gorm.DB, kind, url string) *types.Source {
	tb.Helper()
	s := &types.Source{
		ID:      uuid.New(),
		Name:    url,
		Kind:    kind,
		URL:     url,
		Enabled: true,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed source: %v", err)
	}
	return s
}

func SeedItem(tb testing.TB, ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, title, summary string, createdAt time.Time) *types.IngestedItem {
	tb.Helper()
	it := &types.IngestedItem{
		ID:          uuid.New(),
		SourceID:    sourceID,
		Fingerprint: uuid.NewString(),
		Title:       title,
		Summary:     summary,
		Status:      types.ItemStatusNew,
		CreatedAt:   createdAt,
	}
	if err := tx.WithContext(ctx).Create(it).Error; err != nil {
		tb.Fatalf("seed item: %v", err)
	}
	return it
}

func SeedTopic(tb testing.TB, ctx context.Context, tx *gorm.DB, title, keywords string, itemCount int) *types.TopicDraft {
	tb.Helper()
	now := time.Now()
	tp := &types.TopicDraft{
		ID:         uuid.New(),
		Title:      title,
		Keywords:   keywords,
		ItemCount:  itemCount,
		Status:     types.TopicStatusOpen,
		LastItemAt: &now,
	}
	if err := tx.WithContext(ctx).Create(tp).Error; err != nil {
		tb.Fatalf("seed topic: %v", err)
	}
	return tp
}
