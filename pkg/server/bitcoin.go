package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"btctrack/pkg/log"
	"btctrack/pkg/models"
	"btctrack/pkg/pool"
	"btctrack/pkg/tracker"
)

const maxBatchAddresses = 50

func (s *Server) getBalance(ctx echo.Context) error {
	address := ctx.Param("address")

	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), handlerTimeout)
	defer cancel()

	balance, err := s.tracker.GetBalance(reqCtx, address)
	if err != nil {
		return s.queryError(ctx, address, err)
	}
	return ctx.JSON(http.StatusOK, models.APIResponse{
		Message: "Balance retrieved successfully",
		Data:    balance,
	})
}

func (s *Server) getBalances(ctx echo.Context) error {
	var req struct {
		Addresses []string `json:"addresses"`
	}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, models.APIError{Error: "invalid request body"})
	}
	if len(req.Addresses) == 0 || len(req.Addresses) > maxBatchAddresses {
		return ctx.JSON(http.StatusBadRequest, models.APIError{Error: "addresses must contain between 1 and 50 entries"})
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), handlerTimeout)
	defer cancel()

	balances := s.tracker.GetBalances(reqCtx, req.Addresses)
	return ctx.JSON(http.StatusOK, models.APIResponse{
		Message: "Balances retrieved successfully",
		Data:    balances,
	})
}

func (s *Server) getHistory(ctx echo.Context) error {
	address := ctx.Param("address")

	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), handlerTimeout)
	defer cancel()

	history, err := s.tracker.GetHistory(reqCtx, address)
	if err != nil {
		return s.queryError(ctx, address, err)
	}
	return ctx.JSON(http.StatusOK, models.APIResponse{
		Message: "History retrieved successfully",
		Data:    history,
	})
}

func (s *Server) validateAddress(ctx echo.Context) error {
	var req struct {
		Address string `json:"address"`
	}
	if err := ctx.Bind(&req); err != nil || req.Address == "" {
		return ctx.JSON(http.StatusBadRequest, models.APIError{Error: "address is required"})
	}

	return ctx.JSON(http.StatusOK, models.APIResponse{
		Message: "Address validated",
		Data:    s.tracker.ValidateAddress(req.Address),
	})
}

// queryError maps tracker and pool failures to HTTP statuses: bad
// addresses are the client's fault, pool exhaustion is an upstream
// outage, everything else is a 500.
func (s *Server) queryError(ctx echo.Context, address string, err error) error {
	if errors.Is(err, tracker.ErrInvalidAddress) {
		return ctx.JSON(http.StatusBadRequest, models.APIError{Error: "invalid bitcoin address"})
	}

	var exhausted *pool.ExhaustedError
	var deadline *pool.DeadlineExceededError
	if errors.As(err, &exhausted) || errors.As(err, &deadline) {
		log.Error().Str("address", address).Err(err).Msg("All servers failed")
		return ctx.JSON(http.StatusServiceUnavailable, models.APIError{Error: "no electrum server reachable"})
	}

	log.Error().Str("address", address).Err(err).Msg("Query failed")
	return ctx.JSON(http.StatusInternalServerError, models.APIError{Error: "failed to run query"})
}
