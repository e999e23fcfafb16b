package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	httpH "github.com/yungbote/stancefeed-backend/internal/http/handlers"
	"github.com/yungbote/stancefeed-backend/internal/jobs/pipeline/cluster"
	"github.com/yungbote/stancefeed-backend/internal/jobs/pipeline/generate"
	"github.com/yungbote/stancefeed-backend/internal/jobs/pipeline/ingest"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/observability/perf"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

// wireRedis returns nil when REDIS_ADDR is unset; ingest then relies on the
// unique fingerprint index alone.
func wireRedis(log *logger.Logger, cfg Config) redis.UniversalClient {
	if cfg.RedisAddr == "" {
		log.Info("Redis not configured; seen-cache disabled")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rdb.AddHook(perf.RedisHook{})
	return rdb
}

func wirePipelines(log *logger.Logger, cfg Config, r repos.Repos, rdb redis.UniversalClient) (*jobrt.Registry, error) {
	log.Info("Wiring stage logic...")
	var seen ingest.SeenCache
	if rdb != nil {
		seen = ingest.NewRedisSeen(rdb, cfg.SeenTTL)
	}
	if cfg.OpenAI.Enabled() {
		log.Info("Question generation uses the model", "model", cfg.OpenAI.Model)
	} else {
		log.Info("OPENAI_API_KEY not set; question generation uses templates")
	}

	registry := jobrt.NewRegistry()
	for _, l := range []jobrt.StageLogic{
		ingest.New(log, r.Sources, r.Items, seen, cfg.Ingest),
		cluster.New(log, r.Items, r.Topics, nil, cfg.Cluster),
		generate.New(log, r.Topics, r.Items, r.Questions, generate.ProviderFor(cfg.OpenAI), cfg.Generate),
	} {
		if err := registry.Register(l); err != nil {
			return nil, fmt.Errorf("register stage %q: %w", l.Stage(), err)
		}
	}
	return registry, nil
}

func wireSink(log *logger.Logger, cfg Config, r repos.Repos) jobrt.MetricsSink {
	switch cfg.MetricsSink {
	case SinkREST:
		log.Info("Metrics rows go through the REST endpoint")
		return jobrt.RESTSink{
			BaseURL:    cfg.DBBaseURL,
			ServiceKey: cfg.ServiceKey,
			Client:     &http.Client{Timeout: cfg.MetricsTimeout},
		}
	case SinkNone:
		return jobrt.NopSink{}
	default:
		return jobrt.GormSink{Repo: r.Perf}
	}
}

func wireHealth(theDB *gorm.DB, rdb redis.UniversalClient) *httpH.HealthHandler {
	checks := map[string]httpH.Check{}
	if theDB != nil {
		checks["db"] = func(ctx context.Context) error {
			sqlDB, err := theDB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return httpH.NewHealthHandler(checks)
}
