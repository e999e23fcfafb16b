package perf

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisHook records redis commands as db time against the tracer in the
// command context.
type RedisHook struct{}

var _ redis.Hook = RedisHook{}

func (RedisHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		end := FromContext(ctx).Span(DB)
		defer end()
		return next(ctx, cmd)
	}
}

func (RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		end := FromContext(ctx).Span(DB)
		defer end()
		return next(ctx, cmds)
	}
}
