// Package health implements the liveness endpoint bound before database
// verification.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"commerce-ingest-worker/internal/clock"
)

// Checker tracks whether the database has answered select now() at least
// once since process start.
type Checker struct {
	clock     clock.Clock
	startedAt time.Time
	healthy   atomic.Bool
}

// NewChecker builds a Checker pinned at process start.
func NewChecker(cl clock.Clock) *Checker {
	return &Checker{clock: cl, startedAt: cl.Now()}
}

// MarkHealthy records a successful database probe. Idempotent.
func (c *Checker) MarkHealthy() {
	c.healthy.Store(true)
}

// Probe runs the supplied db check and marks the checker healthy on
// success, used by the startup sequence and by any periodic re-probe.
func (c *Checker) Probe(ctx context.Context, ping func(context.Context) (time.Time, error)) error {
	if _, err := ping(ctx); err != nil {
		return err
	}
	c.MarkHealthy()
	return nil
}

// ServeHTTP answers / and /health: 200 once healthy, 503 before that,
// with uptime seconds and the current timestamp in the payload.
func (c *Checker) ServeHTTP(gctx *gin.Context) {
	now := c.clock.Now()
	payload := gin.H{
		"uptime_seconds": int(now.Sub(c.startedAt).Seconds()),
		"timestamp":      now.UTC().Format(time.RFC3339),
	}

	if c.healthy.Load() {
		gctx.JSON(http.StatusOK, payload)
		return
	}
	gctx.JSON(http.StatusServiceUnavailable, payload)
}

// Register mounts the health handler on both recognised paths and a
// catch-all 404 for everything else (gin's default NoRoute already does
// this; this exists so the intent is explicit rather than incidental).
func Register(engine *gin.Engine, checker *Checker) {
	engine.GET("/", checker.ServeHTTP)
	engine.GET("/health", checker.ServeHTTP)
	engine.NoRoute(func(gctx *gin.Context) {
		gctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
