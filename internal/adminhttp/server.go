// Package adminhttp exposes the process's operational surface — health
// and Prometheus metrics — on a listener separate from the TCP protocol
// port, following the corpus's convention of a gin router dedicated to
// ops endpoints.
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// New builds the gin router for the admin surface.
func New() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// Run starts an http.Server bound to addr and blocks until ctx is
// canceled, then shuts the server down gracefully.
func Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: New(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
