package ingest

import (
	"time"

	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type Config struct {
	SourceBatch            int
	MaxConsecutiveFailures int
	MaxItemsPerSource      int
	MaxFeedBytes           int64
	UserAgent              string
}

func LoadConfig() Config {
	return Config{
		SourceBatch:            envutil.Int("INGEST_SOURCE_BATCH", 20),
		MaxConsecutiveFailures: envutil.Int("INGEST_MAX_CONSECUTIVE_FAILURES", 5),
		MaxItemsPerSource:      envutil.Int("INGEST_MAX_ITEMS_PER_SOURCE", 50),
		MaxFeedBytes:           int64(envutil.Int("INGEST_MAX_FEED_BYTES", 4<<20)),
		UserAgent:              envutil.String("INGEST_USER_AGENT", "stancefeed-ingest/1.0"),
	}
}

type Pipeline struct {
	log     *logger.Logger
	sources repos.SourceRepo
	items   repos.ItemRepo
	seen    SeenCache
	cfg     Config
	now     func() time.Time
}

// New wires the ingest stage. seen may be nil.
func New(baseLog *logger.Logger, sources repos.SourceRepo, items repos.ItemRepo, seen SeenCache, cfg Config) *Pipeline {
	if cfg.SourceBatch <= 0 {
		cfg.SourceBatch = 20
	}
	if cfg.MaxItemsPerSource <= 0 {
		cfg.MaxItemsPerSource = 50
	}
	if cfg.MaxFeedBytes <= 0 {
		cfg.MaxFeedBytes = 4 << 20
	}
	if seen == nil {
		seen = nopSeen{}
	}
	return &Pipeline{
		log:     baseLog.With("job", jobrt.StageIngest),
		sources: sources,
		items:   items,
		seen:    seen,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (p *Pipeline) Stage() string { return jobrt.StageIngest }
