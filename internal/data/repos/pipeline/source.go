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

type SourceRepo interface {
	// ListDue returns enabled sources, least recently fetched first.
	ListDue(dbc dbctx.Context, limit int) ([]*types.Source, error)
	Upsert(dbc dbctx.Context, sources []*types.Source) (int64, error)
	RecordSuccess(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	// RecordFailure bumps the failure counters and disables the source once
	// consecutive failures reach maxConsecutive (0 disables auto-disable).
	RecordFailure(dbc dbctx.Context, id uuid.UUID, msg string, at time.Time, maxConsecutive int) (bool, error)
	// RecordWarning stores msg as the last error without touching the failure
	// streak, for problems on our side rather than the source's.
	RecordWarning(dbc dbctx.Context, id uuid.UUID, msg string, at time.Time) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Source, error)
}

type sourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return &sourceRepo{db: db, log: baseLog.With("repo", "SourceRepo")}
}

func (r *sourceRepo) ListDue(dbc dbctx.Context, limit int) ([]*types.Source, error) {
	var out []*types.Source
	q := dbc.DB(r.db).
		Where("enabled = ?", true).
		Order("last_fetched_at IS NOT NULL").
		Order("last_fetched_at ASC").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sourceRepo) Upsert(dbc dbctx.Context, sources []*types.Source) (int64, error) {
	if len(sources) == 0 {
		return 0, nil
	}
	now := time.Now()
	for _, s := range sources {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.Kind == "" {
			s.Kind = types.SourceKindRSS
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		s.UpdatedAt = now
	}
	res := dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "kind", "enabled", "updated_at"}),
	}).Create(&sources)
	return res.RowsAffected, res.Error
}

func (r *sourceRepo) RecordSuccess(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).Model(&types.Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"success_count":        gorm.Expr("success_count + 1"),
			"consecutive_failures": 0,
			"last_error":           "",
			"last_fetched_at":      at,
			"updated_at":           at,
		}).Error
}

func (r *sourceRepo) RecordFailure(dbc dbctx.Context, id uuid.UUID, msg string, at time.Time, maxConsecutive int) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	disabled := false
	err := dbc.DB(r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&types.Source{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"failure_count":        gorm.Expr("failure_count + 1"),
				"consecutive_failures": gorm.Expr("consecutive_failures + 1"),
				"last_error":           msg,
				"last_fetched_at":      at,
				"updated_at":           at,
			}).Error; err != nil {
			return err
		}
		if maxConsecutive <= 0 {
			return nil
		}
		res := tx.Model(&types.Source{}).
			Where("id = ? AND enabled = ? AND consecutive_failures >= ?", id, true, maxConsecutive).
			Updates(map[string]interface{}{"enabled": false, "updated_at": at})
		if res.Error != nil {
			return res.Error
		}
		disabled = res.RowsAffected > 0
		return nil
	})
	return disabled, err
}

func (r *sourceRepo) RecordWarning(dbc dbctx.Context, id uuid.UUID, msg string, at time.Time) error {
	if id == uuid.Nil {
		return nil
	}
	return dbc.DB(r.db).Model(&types.Source{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_error":      msg,
			"last_fetched_at": at,
			"updated_at":      at,
		}).Error
}

func (r *sourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Source, error) {
	var s types.Source
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&s).Error; err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}
