package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type ItemRepo interface {
	// InsertNew inserts items, silently skipping (source_id, fingerprint)
	// pairs that already exist. It returns the number of rows inserted.
	InsertNew(dbc dbctx.Context, items []*types.IngestedItem) (int64, error)
	ListNew(dbc dbctx.Context, limit int) ([]*types.IngestedItem, error)
	ListByTopic(dbc dbctx.Context, topicID uuid.UUID, limit int) ([]*types.IngestedItem, error)
	// MarkClustered and MarkRejected only touch rows still in status "new";
	// the bool reports whether this call performed the transition.
	MarkClustered(dbc dbctx.Context, id uuid.UUID, topicID uuid.UUID, at time.Time) (bool, error)
	MarkRejected(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error)
	CountByStatus(dbc dbctx.Context, status string) (int64, error)
}

type itemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewItemRepo(db *gorm.DB, baseLog *logger.Logger) ItemRepo {
	return &itemRepo{db: db, log: baseLog.With("repo", "ItemRepo")}
}

func (r *itemRepo) InsertNew(dbc dbctx.Context, items []*types.IngestedItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	now := time.Now()
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		if it.Status == "" {
			it.Status = types.ItemStatusNew
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = now
		}
		it.UpdatedAt = now
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "fingerprint"}},
		DoNothing: true,
	}).Create(&items)
	return res.RowsAffected, res.Error
}

func (r *itemRepo) ListNew(dbc dbctx.Context, limit int) ([]*types.IngestedItem, error) {
	var out []*types.IngestedItem
	q := dbc.DB(r.db).
		Where("status = ?", types.ItemStatusNew).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *itemRepo) ListByTopic(dbc dbctx.Context, topicID uuid.UUID, limit int) ([]*types.IngestedItem, error) {
	var out []*types.IngestedItem
	if topicID == uuid.Nil {
		return out, nil
	}
	q := dbc.DB(r.db).
		Where("topic_id = ?", topicID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *itemRepo) MarkClustered(dbc dbctx.Context, id uuid.UUID, topicID uuid.UUID, at time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.IngestedItem{}).
		Where("id = ? AND status = ?", id, types.ItemStatusNew).
		Updates(map[string]interface{}{
			"status":       types.ItemStatusClustered,
			"topic_id":     topicID,
			"clustered_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *itemRepo) MarkRejected(dbc dbctx.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.IngestedItem{}).
		Where("id = ? AND status = ?", id, types.ItemStatusNew).
		Updates(map[string]interface{}{
			"status":     types.ItemStatusRejected,
			"updated_at": at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *itemRepo) CountByStatus(dbc dbctx.Context, status string) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.IngestedItem{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
