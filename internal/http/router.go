package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/stancefeed-backend/internal/http/handlers"
	httpMW "github.com/yungbote/stancefeed-backend/internal/http/middleware"
	jobrt "github.com/yungbote/stancefeed-backend/internal/jobs/runtime"
	"github.com/yungbote/stancefeed-backend/internal/observability"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

// StagePrefix is where the scheduler reaches each stage.
const StagePrefix = "/functions/v1/"

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string

	StageHandler  *jobrt.Handler
	HealthHandler *httpH.HealthHandler
	Metrics       *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Stages. Every method is routed so the runtime can answer 405 itself.
	if cfg.StageHandler != nil {
		for _, stage := range cfg.StageHandler.Stages() {
			r.Any(StagePrefix+stage, cfg.StageHandler.Stage(stage))
		}
	}

	return r
}
