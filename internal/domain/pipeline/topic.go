package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	TopicStatusOpen    = "open"
	TopicStatusDrafted = "drafted"
)

// TopicDraft groups related items. The generate stage picks a topic up again
// only when ItemCount has grown past GeneratedItemCount.
type TopicDraft struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title              string     `gorm:"column:title;not null" json:"title"`
	Keywords           string     `gorm:"column:keywords" json:"keywords"`
	ItemCount          int        `gorm:"column:item_count;not null;default:0" json:"item_count"`
	GeneratedItemCount int        `gorm:"column:generated_item_count;not null;default:0" json:"generated_item_count"`
	Status             string     `gorm:"column:status;not null;default:open;index" json:"status"`
	LastItemAt         *time.Time `gorm:"column:last_item_at;index" json:"last_item_at,omitempty"`
	CreatedAt          time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"not null" json:"updated_at"`
}

func (TopicDraft) TableName() string { return "pipeline_topic" }

func (t *TopicDraft) KeywordList() []string {
	if t == nil || strings.TrimSpace(t.Keywords) == "" {
		return nil
	}
	return strings.Fields(t.Keywords)
}
