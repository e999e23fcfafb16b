package runtime

import (
	"strings"
	"time"

	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
)

const (
	StageIngest   = "ingest"
	StageCluster  = "cluster"
	StageGenerate = "generate"
)

// StageConfig is the per-stage knob set resolved at startup.
type StageConfig struct {
	Name        string
	Secret      string
	Budget      time.Duration
	Concurrency int
	ChunkSize   int
	// MaxWall bounds the invocation context when > 0.
	MaxWall     time.Duration
	HTTPTimeout time.Duration
}

type stageDefaults struct {
	budget      time.Duration
	concurrency int
	chunkSize   int
}

var defaults = map[string]stageDefaults{
	StageIngest:   {budget: 2000 * time.Millisecond, concurrency: 4, chunkSize: 8},
	StageCluster:  {budget: 1000 * time.Millisecond, concurrency: 3, chunkSize: 25},
	StageGenerate: {budget: 2000 * time.Millisecond, concurrency: 3, chunkSize: 6},
}

func KnownStages() []string {
	return []string{StageIngest, StageCluster, StageGenerate}
}

/*
LoadStageConfig reads <STAGE>_* overrides from the environment.
	- secret: <STAGE>_CRON_SECRET, falling back to CRON_SECRET
	- budget / wall ceiling / http timeout: milliseconds
Unknown stage names get conservative defaults (1s budget, concurrency 1).
*/
func LoadStageConfig(stage string) StageConfig {
	d, ok := defaults[stage]
	if !ok {
		d = stageDefaults{budget: time.Second, concurrency: 1, chunkSize: 10}
	}
	prefix := strings.ToUpper(stage) + "_"
	cfg := StageConfig{
		Name:        stage,
		Secret:      envutil.First("", prefix+"CRON_SECRET", "CRON_SECRET"),
		Budget:      envutil.Millis(prefix+"BUDGET_MS", d.budget),
		Concurrency: envutil.Int(prefix+"CONCURRENCY", d.concurrency),
		ChunkSize:   envutil.Int(prefix+"CHUNK_SIZE", d.chunkSize),
		MaxWall:     envutil.Millis(prefix+"MAX_WALL_MS", 0),
		HTTPTimeout: envutil.Millis(prefix+"HTTP_TIMEOUT_MS", 15*time.Second),
	}
	return cfg.normalized()
}

func (c StageConfig) normalized() StageConfig {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.ChunkSize < 1 {
		c.ChunkSize = 1
	}
	return c
}
