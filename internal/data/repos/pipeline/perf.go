package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/stancefeed-backend/internal/domain"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type PerfRepo interface {
	Create(dbc dbctx.Context, row *types.PerfRun) error
	ListRecent(dbc dbctx.Context, stage string, limit int) ([]*types.PerfRun, error)
}

type perfRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPerfRepo(db *gorm.DB, baseLog *logger.Logger) PerfRepo {
	return &perfRepo{db: db, log: baseLog.With("repo", "PerfRepo")}
}

func (r *perfRepo) Create(dbc dbctx.Context, row *types.PerfRun) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	return dbc.DB(r.db).Create(row).Error
}

func (r *perfRepo) ListRecent(dbc dbctx.Context, stage string, limit int) ([]*types.PerfRun, error) {
	var out []*types.PerfRun
	q := dbc.DB(r.db).Order("created_at DESC")
	if stage != "" {
		q = q.Where("stage = ?", stage)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
