package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PerfRun is the metrics row written once per authenticated stage invocation.
type PerfRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Stage      string         `gorm:"column:stage;not null;index" json:"stage"`
	TraceID    string         `gorm:"column:trace_id;not null;index" json:"trace_id"`
	DurationMs int64          `gorm:"column:duration_ms;not null" json:"duration_ms"`
	ExternalMs int64          `gorm:"column:external_ms;not null;default:0" json:"external_ms"`
	DBMs       int64          `gorm:"column:db_ms;not null;default:0" json:"db_ms"`
	ComputeMs  int64          `gorm:"column:compute_ms;not null;default:0" json:"compute_ms"`
	Items      int64          `gorm:"column:items;not null;default:0" json:"items"`
	OK         bool           `gorm:"column:ok;not null;index" json:"ok"`
	Note       string         `gorm:"column:note" json:"note,omitempty"`
	Result     datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	CreatedAt  time.Time      `gorm:"not null;index" json:"created_at"`
}

func (PerfRun) TableName() string { return "pipeline_perf" }
