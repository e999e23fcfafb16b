package pipeline

import (
	"time"

	"github.com/google/uuid"
)

const (
	ItemStatusNew       = "new"
	ItemStatusClustered = "clustered"
	ItemStatusRejected  = "rejected"
)

// IngestedItem is one piece of external content. Status only moves forward:
// new -> clustered | rejected.
type IngestedItem struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SourceID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_item_source_fp,priority:1" json:"source_id"`
	Fingerprint string     `gorm:"column:fingerprint;not null;uniqueIndex:idx_item_source_fp,priority:2" json:"fingerprint"`
	URL         string     `gorm:"column:url" json:"url"`
	Title       string     `gorm:"column:title;not null" json:"title"`
	Summary     string     `gorm:"column:summary" json:"summary,omitempty"`
	PublishedAt *time.Time `gorm:"column:published_at;index" json:"published_at,omitempty"`
	Status      string     `gorm:"column:status;not null;default:new;index" json:"status"`
	TopicID     *uuid.UUID `gorm:"type:uuid;column:topic_id;index" json:"topic_id,omitempty"`
	ClusteredAt *time.Time `gorm:"column:clustered_at" json:"clustered_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (IngestedItem) TableName() string { return "pipeline_item" }
