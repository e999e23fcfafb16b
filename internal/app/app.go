package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/stancefeed-backend/internal/data/db"
	"github.com/yungbote/stancefeed-backend/internal/data/repos"
	apphttp "github.com/yungbote/stancefeed-backend/internal/http"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/observability"
	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

type App struct {
	Log     *logger.Logger
	DB      *gorm.DB
	Redis   redis.UniversalClient
	Router  *gin.Engine
	Cfg     Config
	Repos   repos.Repos
	Metrics *observability.Metrics
	Stages  *jobrt.Handler

	pg           *db.PostgresService
	shutdownOTel func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.AutoMigrateAll(); err != nil {
			log.Sync()
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
	}
	theDB := pg.DB()

	rdb := wireRedis(log, cfg)
	reposet := repos.New(theDB, log)

	registry, err := wirePipelines(log, cfg, reposet, rdb)
	if err != nil {
		log.Sync()
		return nil, err
	}
	stages := jobrt.NewHandler(
		log,
		registry,
		cfg.Stages,
		jobrt.Deps{DB: theDB, DBBaseURL: cfg.DBBaseURL},
		jobrt.NewEmitter(wireSink(log, cfg, reposet), log, metrics, cfg.MetricsTimeout),
		metrics,
	)
	router := apphttp.NewRouter(apphttp.RouterConfig{
		Log:           log,
		ServiceName:   cfg.ServiceName,
		StageHandler:  stages,
		HealthHandler: wireHealth(theDB, rdb),
		Metrics:       metrics,
	})
	log.Info("Stages mounted", "stages", stages.Stages())

	return &App{
		Log:          log,
		DB:           theDB,
		Redis:        rdb,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Metrics:      metrics,
		Stages:       stages,
		pg:           pg,
		shutdownOTel: shutdownOTel,
	}, nil
}

// Run serves until ctx is cancelled.
func (a *App) Run(ctx context.Context, addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	srv := &apphttp.Server{Engine: a.Router}
	return srv.Run(ctx, addr, a.Cfg.ShutdownGrace)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.shutdownOTel != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.MetricsTimeout)
		if err := a.shutdownOTel(ctx); err != nil && a.Log != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
