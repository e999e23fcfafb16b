package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const QuestionStatusDraft = "draft"

// QuestionDraft is the generated stance question for one topic.
type QuestionDraft struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TopicID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"topic_id"`
	Question  string         `gorm:"column:question;not null" json:"question"`
	Options   datatypes.JSON `gorm:"column:options;type:jsonb" json:"options"`
	Rationale string         `gorm:"column:rationale" json:"rationale,omitempty"`
	Model     string         `gorm:"column:model" json:"model,omitempty"`
	Status    string         `gorm:"column:status;not null;default:draft;index" json:"status"`
	Revision  int            `gorm:"column:revision;not null;default:1" json:"revision"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (QuestionDraft) TableName() string { return "pipeline_question" }
