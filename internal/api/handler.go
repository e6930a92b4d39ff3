package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scalper/internal/execution"
	"scalper/internal/market"
)

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}

// GetStatus handles GET /status requests
func (h *Handler) GetStatus(c *gin.Context) {
	statuses := make([]execution.Status, 0, len(h.ids))
	for _, id := range h.ids {
		statuses = append(statuses, h.controllers[id].Status())
	}
	c.JSON(http.StatusOK, gin.H{"controllers": statuses})
}

// GetReport handles GET /report requests
func (h *Handler) GetReport(c *gin.Context) {
	if h.reporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reporting disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), DefaultTimeout)
	defer cancel()

	report, err := h.reporter.Generate(ctx)
	if err != nil {
		h.handleError(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListMarkets handles GET /markets requests
func (h *Handler) ListMarkets(c *gin.Context) {
	if h.markets == nil {
		c.JSON(http.StatusOK, gin.H{"markets": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markets": h.markets.Symbols()})
}

type marketView struct {
	Symbol           string    `json:"symbol"`
	Origin           string    `json:"origin"`
	Target           string    `json:"target"`
	Price            float64   `json:"price"`
	PercentChange24h float64   `json:"percent_change_24h"`
	OriginVolume     float64   `json:"origin_volume"`
	Interval         string    `json:"interval"`
	Candles          int       `json:"candles"`
	Variations       []float64 `json:"variations"`
}

// GetMarket handles GET /markets/:symbol requests. The interval query
// selects which variations are returned, the base interval by default.
func (h *Handler) GetMarket(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	iv, err := market.ParseInterval(c.DefaultQuery("interval", string(market.BaseInterval)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.markets == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
		return
	}
	m, ok := h.markets.Get(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "market not found"})
		return
	}

	vars := m.Variations[iv]
	const tail = 20
	if len(vars) > tail {
		vars = vars[len(vars)-tail:]
	}
	c.JSON(http.StatusOK, marketView{
		Symbol:           m.Symbol,
		Origin:           m.Origin,
		Target:           m.Target,
		Price:            m.Price,
		PercentChange24h: m.PercentChange24h,
		OriginVolume:     m.OriginVolume,
		Interval:         string(iv),
		Candles:          len(m.Candles[iv]),
		Variations:       vars,
	})
}

// StartController handles POST /controllers/:id/start requests
func (h *Handler) StartController(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	ctrl.Start(h.ctx)
	h.logger.Info("controller started over api", "controller", ctrl.ID(), "request_id", requestID(c))
	c.JSON(http.StatusOK, ctrl.Status())
}

// StopController handles POST /controllers/:id/stop requests
func (h *Handler) StopController(c *gin.Context) {
	ctrl, ok := h.controller(c)
	if !ok {
		return
	}
	ctrl.Stop()
	h.logger.Info("controller stopped over api", "controller", ctrl.ID(), "request_id", requestID(c))
	c.JSON(http.StatusOK, ctrl.Status())
}

func (h *Handler) controller(c *gin.Context) (Controller, bool) {
	ctrl, ok := h.controllers[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "controller not found"})
		return nil, false
	}
	return ctrl, true
}

// handleError logs the error and sends appropriate HTTP response
func (h *Handler) handleError(c *gin.Context, err error, statusCode int, userMessage string) {
	h.logger.Error("API error",
		slog.String("request_id", requestID(c)),
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)
	c.JSON(statusCode, gin.H{"error": userMessage, "request_id": requestID(c)})
}

func requestID(c *gin.Context) string {
	if id, ok := c.Get(RequestIDContextKey); ok {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return "unknown"
}
