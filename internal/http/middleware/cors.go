package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/stancefeed-backend/internal/platform/envutil"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// CORS lets the admin UI trigger stages by hand. CORS_ALLOW_ORIGINS overrides
// the local dev origins.
func CORS() gin.HandlerFunc {
	origins := envutil.List("CORS_ALLOW_ORIGINS")
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", "x-cron-secret", headerRequestID},
		ExposeHeaders:    []string{"x-trace-id", headerRequestID},
		AllowCredentials: true,
	})
}
