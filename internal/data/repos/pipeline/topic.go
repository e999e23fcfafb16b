package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type TopicRepo interface {
	Create(dbc dbctx.Context, topic *types.TopicDraft) error
	// ListRecent returns topics that saw items at or after since, newest first.
	ListRecent(dbc dbctx.Context, since time.Time, limit int) ([]*types.TopicDraft, error)
	AttachItem(dbc dbctx.Context, id uuid.UUID, keywords string, at time.Time) error
	ListReadyForGeneration(dbc dbctx.Context, minItems int, limit int) ([]*types.TopicDraft, error)
	// MarkGenerated records that a question reflects itemCount items. It is a
	// no-op when a newer generation already recorded an equal or larger count.
	MarkGenerated(dbc dbctx.Context, id uuid.UUID, itemCount int, at time.Time) (bool, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TopicDraft, error)
}

type topicRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicRepo(db *gorm.DB, baseLog *logger.Logger) TopicRepo {
	return &topicRepo{db: db, log: baseLog.With("repo", "TopicRepo")}
}

func (r *topicRepo) Create(dbc dbctx.Context, topic *types.TopicDraft) error {
	if topic == nil {
		return nil
	}
	if topic.ID == uuid.Nil {
		topic.ID = uuid.New()
	}
	if topic.Status == "" {
		topic.Status = types.TopicStatusOpen
	}
	return dbc.DB(r.db).Create(topic).Error
}

func (r *topicRepo) ListRecent(dbc dbctx.Context, since time.Time, limit int) ([]*types.TopicDraft, error) {
	var out []*types.TopicDraft
	q := dbc.DB(r.db).
		Where("last_item_at >= ?", since).
		Order("last_item_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *topicRepo) AttachItem(dbc dbctx.Context, id uuid.UUID, keywords string, at time.Time) error {
	return dbc.DB(r.db).Model(&types.TopicDraft{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"item_count":   gorm.Expr("item_count + 1"),
			"keywords":     keywords,
			"last_item_at": at,
			"updated_at":   at,
		}).Error
}

func (r *topicRepo) ListReadyForGeneration(dbc dbctx.Context, minItems int, limit int) ([]*types.TopicDraft, error) {
	var out []*types.TopicDraft
	q := dbc.DB(r.db).
		Where("item_count >= ? AND item_count > generated_item_count", minItems).
		Order("last_item_at DESC").
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *topicRepo) MarkGenerated(dbc dbctx.Context, id uuid.UUID, itemCount int, at time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.TopicDraft{}).
		Where("id = ? AND generated_item_count < ?", id, itemCount).
		Updates(map[string]interface{}{
			"generated_item_count": itemCount,
			"status":               types.TopicStatusDrafted,
			"updated_at":           at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *topicRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TopicDraft, error) {
	var t types.TopicDraft
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}
