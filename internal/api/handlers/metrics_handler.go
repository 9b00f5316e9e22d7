package handlers

import (
	"net/http"
	"runtime"
	"sort"

	"example.com/flightguild/bot/internal/metrics"
	"example.com/flightguild/bot/internal/tracing"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// MetricsHandler exposes the bot's counters and the health of its components
type MetricsHandler struct {
	metrics *metrics.Metrics
	tracer  tracing.Tracer
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(m *metrics.Metrics, tracer tracing.Tracer) *MetricsHandler {
	return &MetricsHandler{metrics: m, tracer: tracer}
}

// HandleGetMetrics returns every counter, gauge and timer
func (h *MetricsHandler) HandleGetMetrics(c *gin.Context) {
	txn := h.tracer.StartTransaction("api-get-metrics")
	defer h.tracer.EndTransaction(txn)

	h.metrics.SetGauge("goroutines", int64(runtime.NumGoroutine()))
	c.JSON(http.StatusOK, h.metrics.GetAllMetrics())
}

// HandleGetHealthCheck reports 503 while any component (discord, ban_store) is unhealthy
func (h *MetricsHandler) HandleGetHealthCheck(c *gin.Context) {
	checks := h.metrics.GetHealthChecks()
	failing := lo.Keys(lo.OmitByValues(checks, []bool{true}))
	sort.Strings(failing)

	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "degraded",
			"failing": failing,
			"details": checks,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"uptime_seconds": h.metrics.GetUptimeSeconds(),
		"details":        checks,
	})
}

// RegisterRoutes registers the handler's routes
func (h *MetricsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", h.HandleGetMetrics)
	router.GET("/health", h.HandleGetHealthCheck)
}
