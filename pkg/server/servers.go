package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"btctrack/pkg/models"
)

// getServers returns the ranked health snapshot of every known server.
func (s *Server) getServers(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, models.APIResponse{
		Message: "Server pool status",
		Data:    s.pool.Registry().Snapshot(),
	})
}

// discoverServers runs one discovery+probe cycle and returns the
// refreshed snapshot.
func (s *Server) discoverServers(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), discoverTimeout)
	defer cancel()

	reachable := s.pool.Refresh(reqCtx)
	return ctx.JSON(http.StatusOK, models.APIResponse{
		Message: "Discovery completed",
		Data: map[string]any{
			"reachable": reachable,
			"servers":   s.pool.Registry().Snapshot(),
		},
	})
}
