// Package server exposes the tracker over a REST API with API-key
// authentication, rate limiting and security headers.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"btctrack/pkg/config"
	"btctrack/pkg/log"
	"btctrack/pkg/pool"
	"btctrack/pkg/tracker"
)

const (
	shutdownTimeout = 10 * time.Second

	// handlerTimeout bounds the pool failover behind one API request.
	handlerTimeout = 45 * time.Second

	// discoverTimeout bounds an explicit discovery refresh request.
	discoverTimeout = 2 * time.Minute

	secondsPerMinute = 60
)

// Server is the REST front end over one tracker and its server pool.
type Server struct {
	tracker *tracker.Tracker
	pool    *pool.Pool
	cfg     config.APIConfig
	version string
	echo    *echo.Echo
}

// New creates an API server. An empty cfg.APIKey disables
// authentication, which is only sensible on a loopback listener.
func New(trk *tracker.Tracker, p *pool.Pool, cfg config.APIConfig, version string) *Server {
	return &Server{
		tracker: trk,
		pool:    p,
		cfg:     cfg,
		version: version,
		echo:    echo.New(),
	}
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	s.setupRoutes()

	go func() {
		log.Info().Str("addr", s.cfg.Listen).Str("version", s.version).Msg("Starting API server")
		if err := s.echo.Start(s.cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return s.Shutdown()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown() error {
	log.Info().Msg("Shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}
	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (s *Server) setupRoutes() {
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${id} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	s.echo.Use(middleware.Secure())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	if s.cfg.RatePerMin > 0 {
		s.echo.Use(middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(float64(s.cfg.RatePerMin) / secondsPerMinute),
				Burst:     s.cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		}))
	}

	// Health stays unauthenticated for load balancers and monitors.
	s.echo.GET("/health", s.getHealth)

	v1 := s.echo.Group("/v1")
	if s.cfg.APIKey != "" {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: s.validateAPIKey,
		}))
	} else {
		log.Warn().Msg("API key not set; /v1 endpoints are unauthenticated")
	}

	v1.GET("/bitcoin/balance/:address", s.getBalance)
	v1.POST("/bitcoin/balances", s.getBalances)
	v1.GET("/bitcoin/history/:address", s.getHistory)
	v1.POST("/bitcoin/validate", s.validateAddress)
	v1.GET("/servers", s.getServers)
	v1.POST("/servers/discover", s.discoverServers)
}

// validateAPIKey compares keys in constant time to avoid timing leaks.
func (s *Server) validateAPIKey(key string, _ echo.Context) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.APIKey)) == 1, nil
}
