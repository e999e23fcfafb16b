package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type QuestionRepo interface {
	GetByTopic(dbc dbctx.Context, topicID uuid.UUID) (*types.QuestionDraft, error)
	// Upsert creates the topic's draft or overwrites it with a bumped revision.
	// created reports which of the two happened.
	Upsert(dbc dbctx.Context, q *types.QuestionDraft) (created bool, err error)
	Count(dbc dbctx.Context) (int64, error)
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (r *questionRepo) GetByTopic(dbc dbctx.Context, topicID uuid.UUID) (*types.QuestionDraft, error) {
	var q types.QuestionDraft
	if err := dbc.DB(r.db).Where("topic_id = ?", topicID).Limit(1).Find(&q).Error; err != nil {
		return nil, err
	}
	if q.ID == uuid.Nil {
		return nil, nil
	}
	return &q, nil
}

func (r *questionRepo) Upsert(dbc dbctx.Context, q *types.QuestionDraft) (bool, error) {
	if q == nil || q.TopicID == uuid.Nil {
		return false, nil
	}
	created := false
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		var existing types.QuestionDraft
		if err := tx.Where("topic_id = ?", q.TopicID).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		now := time.Now()
		if existing.ID == uuid.Nil {
			if q.ID == uuid.Nil {
				q.ID = uuid.New()
			}
			if q.Status == "" {
				q.Status = types.QuestionStatusDraft
			}
			q.Revision = 1
			created = true
			return tx.Create(q).Error
		}
		q.ID = existing.ID
		q.Revision = existing.Revision + 1
		q.CreatedAt = existing.CreatedAt
		q.UpdatedAt = now
		return tx.Model(&types.QuestionDraft{}).
			Where("id = ?", existing.ID).
			Updates(map[string]interface{}{
				"question":   q.Question,
				"options":    q.Options,
				"rationale":  q.Rationale,
				"model":      q.Model,
				"revision":   q.Revision,
				"updated_at": now,
			}).Error
	})
	return created, err
}

func (r *questionRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&types.QuestionDraft{}).Count(&n).Error
	return n, err
}
