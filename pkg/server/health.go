package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"btctrack/pkg/models"
)

// getHealth reports API liveness plus a coarse view of the server pool.
// It never dials out; a slow upstream must not make monitoring slow.
func (s *Server) getHealth(ctx echo.Context) error {
	services := map[string]string{"api": "healthy"}

	status := "healthy"
	online := 0
	for _, srv := range s.pool.Registry().Snapshot() {
		if srv.Online {
			online++
		}
	}
	if online > 0 {
		services["electrum_pool"] = "healthy"
	} else {
		services["electrum_pool"] = "degraded"
		status = "degraded"
	}

	return ctx.JSON(http.StatusOK, models.HealthResponse{
		Status:    status,
		Version:   s.version,
		Timestamp: time.Now().UTC(),
		Services:  services,
	})
}
