package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/stancefeed-backend/internal/platform/ctxutil"
)

const headerRequestID = "X-Request-Id"

// AttachTraceContext tags every request with a request id and, when otelgin ran
// first, the otel trace id. The x-trace-id response header is left to the stage
// runtime, which only issues one once a call is authorized.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if reqID == "" {
			reqID = uuid.New().String()
		}
		var traceID string
		if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.HasTraceID() {
			traceID = spanCtx.TraceID().String()
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("request_id", reqID)
		if traceID != "" {
			c.Set("otel_trace_id", traceID)
		}
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}
