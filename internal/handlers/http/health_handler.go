package http

import (
	"net/http"
	"time"

	"physlab/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// ConnectionCounter reports live realtime connections.
type ConnectionCounter interface {
	Count() int
}

type HealthHandler struct {
	checker     *monitoring.HealthChecker
	connections ConnectionCounter
	started     time.Time
}

func NewHealthHandler(checker *monitoring.HealthChecker, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{
		checker:     checker,
		connections: connections,
		started:     time.Now(),
	}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/api/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health is a liveness probe and never touches dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	connections := 0
	if h.connections != nil {
		connections = h.connections.Count()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"timestamp":   time.Now().UTC(),
		"uptime":      time.Since(h.started).Seconds(),
		"connections": connections,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != monitoring.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
