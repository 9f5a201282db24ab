// Package api exposes the quiz service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02061997/ai-tutor-experiment/internal/logging"
	"github.com/02061997/ai-tutor-experiment/internal/metrics"
)

type RouterConfig struct {
	Quiz    *QuizHandler
	Metrics *metrics.Metrics
	Log     *logging.Logger
	// Ping reports storage health for /healthz.
	Ping func(ctx context.Context) error
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logging.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), observe(log.Named("http"), cfg.Metrics))

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ping(ctx); err != nil {
				log.Warn("health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.Quiz != nil {
		v1 := r.Group("/v1/quiz")
		v1.POST("/attempts", cfg.Quiz.Start)
		v1.POST("/attempts/:id/answers", cfg.Quiz.Answer)
		v1.POST("/attempts/:id/abort", cfg.Quiz.Abort)
		v1.GET("/attempts/:id", cfg.Quiz.Get)
	}
	return r
}

// observe logs each request and records its latency by route pattern.
func observe(log *logging.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		m.ObserveHTTP(c.Request.Method, route, status, elapsed)
		log.Debug("http request", "method", c.Request.Method, "route", route, "status", status, "duration_ms", elapsed.Milliseconds())
	}
}
