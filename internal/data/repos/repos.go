package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/stancefeed-backend/internal/data/repos/pipeline"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type SourceRepo = pipeline.SourceRepo
type ItemRepo = pipeline.ItemRepo
type TopicRepo = pipeline.TopicRepo
type QuestionRepo = pipeline.QuestionRepo
type PerfRepo = pipeline.PerfRepo

type Repos struct {
	Sources   SourceRepo
	Items     ItemRepo
	Topics    TopicRepo
	Questions QuestionRepo
	Perf      PerfRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Sources:   pipeline.NewSourceRepo(db, log),
		Items:     pipeline.NewItemRepo(db, log),
		Topics:    pipeline.NewTopicRepo(db, log),
		Questions: pipeline.NewQuestionRepo(db, log),
		Perf:      pipeline.NewPerfRepo(db, log),
	}
}
