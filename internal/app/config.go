package app

import (
	"strings"
	"time"

	"github.com/yungbote/stancefeed-backend/internal/jobs/pipeline/cluster"
	"github.com/yungbote/stancefeed-backend/internal/jobs/pipeline/generate"
	"github.com/yungbote/stancefeed-backend/internal/jobs/pipeline/ingest"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
	"github.com/yungbote/stancefeed-backend/internal/platform/openai"
)

const (
	SinkGorm = "gorm"
	SinkREST = "rest"
	SinkNone = "none"
)

type Config struct {
	LogMode       string
	Port          string
	ServiceName   string
	Environment   string
	AutoMigrate   bool
	ShutdownGrace time.Duration

	// Stages lists the mounted stages in route order.
	Stages []jobrt.StageConfig

	// DBBaseURL is the hosted project URL. Outbound calls under it count as db time.
	DBBaseURL  string
	ServiceKey string
	// MetricsSink is one of gorm, rest or none.
	MetricsSink    string
	MetricsTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SeenTTL       time.Duration

	Ingest   ingest.Config
	Cluster  cluster.Config
	Generate generate.Config
	OpenAI   openai.Config
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:        envutil.String("LOG_MODE", "development"),
		Port:           envutil.String("PORT", "8080"),
		ServiceName:    envutil.String("OTEL_SERVICE_NAME", "stancefeed-pipeline"),
		Environment:    envutil.String("APP_ENV", "development"),
		AutoMigrate:    envutil.Bool("DB_AUTO_MIGRATE", true),
		ShutdownGrace:  envutil.Millis("SHUTDOWN_GRACE_MS", 30*time.Second),
		DBBaseURL:      envutil.First("", "SUPABASE_URL", "PROJECT_BASE_URL"),
		ServiceKey:     envutil.String("SUPABASE_SERVICE_ROLE_KEY", ""),
		MetricsSink:    strings.ToLower(envutil.String("METRICS_SINK", SinkGorm)),
		MetricsTimeout: envutil.Millis("METRICS_SINK_TIMEOUT_MS", 2*time.Second),
		RedisAddr:      envutil.String("REDIS_ADDR", ""),
		RedisPassword:  envutil.String("REDIS_PASSWORD", ""),
		RedisDB:        envutil.Int("REDIS_DB", 0),
		SeenTTL:        envutil.Millis("INGEST_SEEN_TTL_MS", 72*time.Hour),
		Ingest:         ingest.LoadConfig(),
		Cluster:        cluster.LoadConfig(),
		Generate:       generate.LoadConfig(),
		OpenAI:         openai.LoadConfig(),
	}

	for _, name := range stageNames(envutil.List("PIPELINE_STAGES")) {
		sc := jobrt.LoadStageConfig(name)
		if sc.Secret == "" && log != nil {
			log.Warn("No cron secret configured; every call will be rejected", "stage", name)
		}
		cfg.Stages = append(cfg.Stages, sc)
	}

	switch cfg.MetricsSink {
	case SinkGorm, SinkNone:
	case SinkREST:
		if cfg.DBBaseURL == "" && log != nil {
			log.Warn("METRICS_SINK=rest without SUPABASE_URL; metrics rows will fail")
		}
	default:
		if log != nil {
			log.Warn("Unknown METRICS_SINK, using gorm", "value", cfg.MetricsSink)
		}
		cfg.MetricsSink = SinkGorm
	}
	return cfg
}

// stageNames keeps the known stages in pipeline order, restricted to want when
// it is non-empty. Unknown names are dropped.
func stageNames(want []string) []string {
	if len(want) == 0 {
		return jobrt.KnownStages()
	}
	set := make(map[string]bool, len(want))
	for _, w := range want {
		set[strings.ToLower(w)] = true
	}
	var out []string
	for _, s := range jobrt.KnownStages() {
		if set[s] {
			out = append(out, s)
		}
	}
	return out
}
