// Package server implements the HTTP API of the screening service with gin:
//
//   - GET  /          status of the service.
//   - GET  /health    200 if the model is loaded, 503 otherwise.
//   - GET  /questions the ten questions of the questionnaire.
//   - POST /predict   prediction for one questionnaire.
//   - GET  /metrics   held-out metrics of the loaded model.
package server

import (
	"context"
	"github.com/gin-gonic/gin"
	"github.com/janpfeifer/screenGo/internal/config"
	"github.com/janpfeifer/screenGo/internal/inference"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"net/http"
	"time"
)

const maxHeaderBytes = 1 << 20

// Server holds the gin router serving an inference.Service.
type Server struct {
	service *inference.Service
	router  *gin.Engine
}

// New creates the router for the service. Use gin.SetMode before calling it to change
// the gin mode (the binaries use gin.ReleaseMode).
func New(service *inference.Service) *Server {
	registerJSONFieldNames()
	s := &Server{service: service, router: gin.New()}
	s.router.Use(requestLogger(), gin.Recovery())
	s.router.GET("/", s.root)
	s.router.GET("/health", s.health)
	s.router.GET("/questions", s.questions)
	s.router.POST("/predict", s.predict)
	s.router.GET("/metrics", s.metrics)
	return s
}

// Handler returns the http.Handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestLogger logs every request with klog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			klog.Warningf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
			return
		}
		klog.V(1).Infof("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}

// ListenAndServe serves on cfg.Addr until ctx is done, and then shuts down gracefully,
// waiting at most cfg.ShutdownTimeout for pending requests.
func (s *Server) ListenAndServe(ctx context.Context, cfg *config.Serving) error {
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.ReadTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	klog.Infof("Serving on %s (model loaded: %v)", cfg.Addr, s.service.Available())

	select {
	case err := <-serveErr:
		return errors.Wrapf(err, "failed to serve on %s", cfg.Addr)
	case <-ctx.Done():
	}
	klog.Infof("Shutting down server, waiting up to %s for pending requests", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "failed to shut down server")
	}
	return nil
}
