package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Ready runs every dependency check concurrently and answers 503 when any fails.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make([]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, check := i, h.checks[name]
		g.Go(func() error {
			if err := check(gctx); err != nil {
				status[i] = err.Error()
				return fmt.Errorf("%s: %w", names[i], err)
			}
			status[i] = "ok"
			return nil
		})
	}
	err := g.Wait()

	body := gin.H{}
	for i, name := range names {
		body[name] = status[i]
	}
	if err != nil {
		body["ok"] = false
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["ok"] = true
	c.JSON(http.StatusOK, body)
}
