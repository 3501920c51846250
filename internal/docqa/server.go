package docqa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/metrics"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/pkg/component"
	httpopts "github.com/kart-io/docqa/pkg/options/http"
)

// Server serves the DocQA HTTP API with graceful shutdown.
type Server struct {
	opts   *httpopts.Options
	engine *gin.Engine
	server *http.Server
}

// NewServer assembles the gin engine, the API routes and the operational
// endpoints.
func NewServer(opts *httpopts.Options, service biz.Service, components *component.Manager) *Server {
	gin.SetMode(opts.Mode)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	router.Register(engine, handler.NewDocQAHandler(service, opts.RequestTimeout))

	engine.GET("/healthz", func(c *gin.Context) {
		statuses := components.HealthCheckAll(c.Request.Context())
		healthy := true
		detail := make(map[string]interface{}, len(statuses))
		for name, status := range statuses {
			entry := map[string]interface{}{
				"healthy": status.Healthy,
				"latency": status.Latency.String(),
			}
			if status.Error != nil {
				entry["error"] = status.Error.Error()
				healthy = false
			}
			detail[name] = entry
		}

		code := http.StatusOK
		state := "ok"
		if !healthy {
			code = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(code, gin.H{"status": state, "components": detail})
	})

	engine.GET("/metrics", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8",
			[]byte(metrics.GetDocQAMetrics().Export("docqa", "pipeline")))
	})

	return &Server{
		opts:   opts,
		engine: engine,
		server: &http.Server{
			Addr:         opts.Addr,
			Handler:      engine,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Engine exposes the gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Infow("http server listening", "addr", s.opts.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Infow("shutting down http server", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}

// requestLogger logs one line per request with latency and status.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
