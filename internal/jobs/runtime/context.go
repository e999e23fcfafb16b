package runtime

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/stancefeed-backend/internal/jobs/limiter"
	"github.com/yungbote/stancefeed-backend/internal/observability/perf"
	"github.com/yungbote/stancefeed-backend/internal/platform/ctxutil"
	"github.com/yungbote/stancefeed-backend/internal/platform/dbctx"
	"github.com/yungbote/stancefeed-backend/internal/platform/logger"
)

// Deps are the long-lived handles every invocation borrows.
type Deps struct {
	DB *gorm.DB
	// DBBaseURL classifies outbound requests as db time (e.g. the PostgREST host).
	DBBaseURL string
	// Transport is the base round tripper for ctx.HTTP; nil means the default.
	Transport http.RoundTripper
}

/*
Context is the capability handle stage logic receives for one invocation.
It carries:
	- Ctx: request context with the tracer attached (and the wall ceiling, if any)
	- HTTP / DB(): the only sanctioned ways to reach the network or database,
	  both attributed to Tracer
	- Budget + ShouldStop(): the cooperative timebox
	- Limiter / Go: bounded fan-out for per-item work
Stage logic never builds its own clients; anything it does outside these
handles is counted as compute time.
*/
type Context struct {
	Ctx       context.Context
	Stage     string
	TraceID   string
	Budget    time.Duration
	ChunkSize int
	Log       *logger.Logger
	HTTP      *http.Client
	Tracer    *perf.Tracer
	Limiter   *limiter.Limiter
	Body      []byte

	db *gorm.DB
}

// NewContext binds cfg and deps to tracer t. The returned cancel releases the
// wall-clock ceiling and must be called once the invocation ends.
func NewContext(parent context.Context, cfg StageConfig, deps Deps, t *perf.Tracer, log *logger.Logger) (*Context, context.CancelFunc) {
	cfg = cfg.normalized()
	if parent == nil {
		parent = context.Background()
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx := perf.WithTracer(parent, t)
	ctx = ctxutil.WithStageTrace(ctx, cfg.Name, t.ID())
	cancel := context.CancelFunc(func() {})
	if cfg.MaxWall > 0 {
		ctx, cancel = context.WithTimeout(ctx, cfg.MaxWall)
	}
	c := &Context{
		Ctx:       ctx,
		Stage:     cfg.Name,
		TraceID:   t.ID(),
		Budget:    cfg.Budget,
		ChunkSize: cfg.ChunkSize,
		Log:       log,
		HTTP:      perf.NewClient(deps.Transport, t, deps.DBBaseURL, cfg.HTTPTimeout),
		Tracer:    t,
		Limiter:   limiter.New(cfg.Concurrency),
		db:        deps.DB,
	}
	return c, cancel
}

// DB returns the gorm handle bound to Ctx, or nil when no database is wired.
func (c *Context) DB() *gorm.DB {
	if c.db == nil {
		return nil
	}
	return c.db.WithContext(c.Ctx)
}

func (c *Context) DBC() dbctx.Context {
	return dbctx.Context{Ctx: c.Ctx}
}

/*
ShouldStop reports whether the invocation has exhausted its budget.
The budget covers compute and db time only:
	(elapsed - external) > Budget
so a slow upstream never starves local work. It is also true once Ctx is
done (client gone or wall ceiling hit). A zero budget never stops.
*/
func (c *Context) ShouldStop() bool {
	if c.Ctx != nil && c.Ctx.Err() != nil {
		return true
	}
	if c.Budget <= 0 {
		return false
	}
	return c.Tracer.Elapsed()-c.Tracer.Spent(perf.External) > c.Budget
}

// Go schedules task on the invocation limiter.
func (c *Context) Go(task func(context.Context) error) *limiter.Future {
	return c.Limiter.Go(c.Ctx, task)
}

// Limit is Go for tasks that produce a value.
func Limit[T any](c *Context, task func(context.Context) (T, error)) *limiter.Result[T] {
	return limiter.Submit(c.Ctx, c.Limiter, task)
}

// SetBody records the raw request body. Stage logic may log it but never
// derives work bounds from it.
func (c *Context) SetBody(b []byte) {
	c.Body = b
}
