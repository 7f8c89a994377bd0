package http

import (
	"context"
	"net/http"

	"physlab/internal/core/ports"
	"physlab/internal/core/services"

	"github.com/gin-gonic/gin"
)

type AnalyticsHandler struct {
	analyticsService ports.AnalyticsService
}

func NewAnalyticsHandler(analyticsService ports.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
	}
}

func (h *AnalyticsHandler) SetupRoutes(api *gin.RouterGroup, g Guards) {
	analytics := api.Group("/analytics", g.Auth, g.require(services.OpAnalyticsRead))
	{
		analytics.GET("/overview", report(func(ctx context.Context) (interface{}, error) {
			return h.analyticsService.Overview(ctx)
		}))
		analytics.GET("/students", report(func(ctx context.Context) (interface{}, error) {
			return h.analyticsService.Students(ctx)
		}))
		analytics.GET("/materials", report(func(ctx context.Context) (interface{}, error) {
			return h.analyticsService.Materials(ctx)
		}))
		analytics.GET("/tests", report(func(ctx context.Context) (interface{}, error) {
			return h.analyticsService.Tests(ctx)
		}))
	}
}

func report(fn func(ctx context.Context) (interface{}, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := fn(c.Request.Context())
		if err != nil {
			c.Error(err)
			return
		}
		respond(c, http.StatusOK, data)
	}
}
