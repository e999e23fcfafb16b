package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
	Stage     string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// WithStageTrace copies any request-level trace data and overlays the stage invocation ids.
func WithStageTrace(ctx context.Context, stage, traceID string) context.Context {
	td := &TraceData{TraceID: traceID, Stage: stage}
	if prev := GetTraceData(ctx); prev != nil {
		td.RequestID = prev.RequestID
	}
	return WithTraceData(ctx, td)
}
