// Package api is the HTTP control plane: controller status, start and stop,
// the performance report and cached market snapshots.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"scalper/internal/execution"
	"scalper/internal/market"
	"scalper/internal/performance"
)

const (
	DefaultTimeout      = 30 * time.Second
	ServiceName         = "scalper"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// Controller is the part of a trade controller the API drives.
type Controller interface {
	ID() string
	Start(ctx context.Context)
	Stop()
	Status() execution.Status
}

// Reporter produces the performance report.
type Reporter interface {
	Generate(ctx context.Context) (*performance.Report, error)
}

// MarketCache serves the latest featured snapshot of a market.
type MarketCache interface {
	Get(symbol string) (*market.Market, bool)
	Symbols() []string
}

type Handler struct {
	// ctx outlives requests; controllers started over HTTP run on it.
	ctx         context.Context
	controllers map[string]Controller
	ids         []string
	reporter    Reporter
	markets     MarketCache
	logger      *slog.Logger
	started     time.Time
}

func NewHandler(ctx context.Context, controllers []Controller, reporter Reporter, markets MarketCache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		ctx:         ctx,
		controllers: make(map[string]Controller, len(controllers)),
		reporter:    reporter,
		markets:     markets,
		logger:      logger,
		started:     time.Now(),
	}
	for _, c := range controllers {
		h.controllers[c.ID()] = c
		h.ids = append(h.ids, c.ID())
	}
	sort.Strings(h.ids)
	return h
}

// SetupRoutes configures all API routes.
func (h *Handler) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(h.logger))
	router.Use(gin.Recovery())

	router.GET("/health", h.HealthCheck)
	router.GET("/status", h.GetStatus)
	router.GET("/report", h.GetReport)
	router.GET("/markets", h.ListMarkets)
	router.GET("/markets/:symbol", h.GetMarket)
	router.POST("/controllers/:id/start", h.StartController)
	router.POST("/controllers/:id/stop", h.StopController)

	return router
}

// Serve runs the HTTP server until ctx is cancelled.
func (h *Handler) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	h.logger.Info("api listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
