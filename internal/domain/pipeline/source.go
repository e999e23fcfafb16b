package pipeline

import (
	"time"

	"github.com/google/uuid"
)

const (
	SourceKindRSS  = "rss"
	SourceKindJSON = "json"
)

// Source is a registry entry the ingest stage polls.
type Source struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name                string     `gorm:"column:name;not null" json:"name"`
	Kind                string     `gorm:"column:kind;not null;default:rss" json:"kind"`
	URL                 string     `gorm:"column:url;not null;uniqueIndex" json:"url"`
	Enabled             bool       `gorm:"column:enabled;not null;index" json:"enabled"`
	LastFetchedAt       *time.Time `gorm:"column:last_fetched_at;index" json:"last_fetched_at,omitempty"`
	SuccessCount        int        `gorm:"column:success_count;not null;default:0" json:"success_count"`
	FailureCount        int        `gorm:"column:failure_count;not null;default:0" json:"failure_count"`
	ConsecutiveFailures int        `gorm:"column:consecutive_failures;not null;default:0" json:"consecutive_failures"`
	LastError           string     `gorm:"column:last_error" json:"last_error,omitempty"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updated_at"`
}

func (Source) TableName() string { return "pipeline_source" }
