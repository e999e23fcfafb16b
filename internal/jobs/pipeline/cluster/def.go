package cluster

import (
	"time"

	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type Config struct {
	ItemBatch     int
	MinSimilarity float64
	// MinKeywords is the floor below which an item is rejected as too thin.
	MinKeywords int
	MaxKeywords int
	TopicWindow time.Duration
	TopicLimit  int
}

func LoadConfig() Config {
	return Config{
		ItemBatch:     envutil.Int("CLUSTER_ITEM_BATCH", 100),
		MinSimilarity: envutil.Float("CLUSTER_MIN_SIMILARITY", 0.34),
		MinKeywords:   envutil.Int("CLUSTER_MIN_KEYWORDS", 3),
		MaxKeywords:   envutil.Int("CLUSTER_MAX_KEYWORDS", 12),
		TopicWindow:   envutil.Millis("CLUSTER_TOPIC_WINDOW_MS", 72*time.Hour),
		TopicLimit:    envutil.Int("CLUSTER_TOPIC_LIMIT", 200),
	}
}

func (c Config) withDefaults() Config {
	if c.ItemBatch <= 0 {
		c.ItemBatch = 100
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.34
	}
	if c.MinKeywords <= 0 {
		c.MinKeywords = 3
	}
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = 12
	}
	if c.TopicWindow <= 0 {
		c.TopicWindow = 72 * time.Hour
	}
	if c.TopicLimit <= 0 {
		c.TopicLimit = 200
	}
	return c
}

type Pipeline struct {
	log     *logger.Logger
	items   repos.ItemRepo
	topics  repos.TopicRepo
	matcher Matcher
	cfg     Config
	now     func() time.Time
}

// New wires the cluster stage. A nil matcher means keyword Jaccard.
func New(baseLog *logger.Logger, items repos.ItemRepo, topics repos.TopicRepo, matcher Matcher, cfg Config) *Pipeline {
	if matcher == nil {
		matcher = Jaccard{}
	}
	return &Pipeline{
		log:     baseLog.With("job", jobrt.StageCluster),
		items:   items,
		topics:  topics,
		matcher: matcher,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
}

func (p *Pipeline) Stage() string { return jobrt.StageCluster }
