package domain

import "github.com/yungbote/stancefeed-backend/internal/domain/pipeline"

type Source = pipeline.Source
type IngestedItem = pipeline.IngestedItem
type TopicDraft = pipeline.TopicDraft
type QuestionDraft = pipeline.QuestionDraft
type PerfRun = pipeline.PerfRun

const (
	SourceKindRSS  = pipeline.SourceKindRSS
	SourceKindJSON = pipeline.SourceKindJSON

	ItemStatusNew       = pipeline.ItemStatusNew
	ItemStatusClustered = pipeline.ItemStatusClustered
	ItemStatusRejected  = pipeline.ItemStatusRejected

	TopicStatusOpen    = pipeline.TopicStatusOpen
	TopicStatusDrafted = pipeline.TopicStatusDrafted

	QuestionStatusDraft = pipeline.QuestionStatusDraft
)

// All lists every model owned by this service, in migration order.
func All() []any {
	return []any{
		&Source{},
		&IngestedItem{},
		&TopicDraft{},
		&QuestionDraft{},
		&PerfRun{},
	}
}
