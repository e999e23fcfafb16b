package generate

import (
	"time"

	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type Config struct {
	TopicBatch   int
	MinItems     int
	ContextItems int
}

func LoadConfig() Config {
	return Config{
		TopicBatch:   envutil.Int("GENERATE_TOPIC_BATCH", 10),
		MinItems:     envutil.Int("GENERATE_MIN_ITEMS", 2),
		ContextItems: envutil.Int("GENERATE_CONTEXT_ITEMS", 8),
	}
}

type Pipeline struct {
	log       *logger.Logger
	topics    repos.TopicRepo
	items     repos.ItemRepo
	questions repos.QuestionRepo
	provider  Provider
	cfg       Config
	now       func() time.Time
}

// New wires the generate stage. A nil provider uses the template generator.
func New(baseLog *logger.Logger, topics repos.TopicRepo, items repos.ItemRepo, questions repos.QuestionRepo, provider Provider, cfg Config) *Pipeline {
	if provider == nil {
		provider = TemplateProvider()
	}
	if cfg.TopicBatch <= 0 {
		cfg.TopicBatch = 10
	}
	if cfg.MinItems <= 0 {
		cfg.MinItems = 1
	}
	if cfg.ContextItems <= 0 {
		cfg.ContextItems = 8
	}
	return &Pipeline{
		log:       baseLog.With("job", jobrt.StageGenerate),
		topics:    topics,
		items:     items,
		questions: questions,
		provider:  provider,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (p *Pipeline) Stage() string { return jobrt.StageGenerate }
