package http

import (
	"net/http"

	"physlab/internal/core/ports"
	"physlab/internal/core/services"
	"physlab/internal/infrastructure/middleware"
	"physlab/internal/infrastructure/monitoring"
	"physlab/pkg/config"
	"physlab/pkg/logger"
	"physlab/pkg/validation"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the domain operations exposed over HTTP.
type Services struct {
	Auth      ports.AuthService
	Materials ports.MaterialService
	Students  ports.StudentService
	Teachers  ports.TeacherService
	Messages  ports.MessageService
	Schedule  ports.ScheduleService
	Analytics ports.AnalyticsService
}

type RouterDeps struct {
	Config   *config.Config
	Services Services
	Policy   *services.AccessPolicy
	Health   *monitoring.HealthChecker
	// Connections backs the live connection count on /health.
	Connections ConnectionCounter
	// Realtime serves the websocket upgrade on cfg.Realtime.Path. Nil leaves it unmounted.
	Realtime http.Handler
	// Gatherer backs /metrics when Prometheus is enabled.
	Gatherer prometheus.Gatherer
	Metrics  middleware.HTTPRecorder
	Logger   *zap.Logger
}

func NewRouter(d RouterDeps) *gin.Engine {
	validation.RegisterJSONTagNames()

	log := d.Logger.Sugar()
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestIDMiddleware(),
		middleware.RequestLogger(logger.NewContextLogger(d.Logger), d.Metrics),
		middleware.TracingMiddleware(),
		middleware.CORSMiddleware(d.Config.Server.AllowedOrigins),
		middleware.BodyLimitMiddleware(d.Config.Server.BodyLimitBytes),
		middleware.NewHTTPRateLimitMiddleware(d.Config),
		middleware.ErrorHandlerMiddleware(log),
	)

	guards := Guards{
		Auth:     middleware.AuthMiddleware(d.Services.Auth),
		Optional: middleware.OptionalAuthMiddleware(d.Services.Auth),
		Policy:   d.Policy,
	}

	api := router.Group("/api")
	materials := NewMaterialHandler(d.Services.Materials)
	NewAuthHandler(d.Services.Auth).SetupRoutes(api, guards)
	materials.SetupRoutes(api, guards)
	NewStudentHandler(d.Services.Students).SetupRoutes(api, guards)
	NewTeacherHandler(d.Services.Teachers, materials).SetupRoutes(api, guards)
	NewMessageHandler(d.Services.Messages).SetupRoutes(api, guards)
	NewScheduleHandler(d.Services.Schedule).SetupRoutes(api, guards)
	NewAnalyticsHandler(d.Services.Analytics).SetupRoutes(api, guards)

	health := d.Health
	if health == nil {
		health = monitoring.NewHealthChecker()
	}
	NewHealthHandler(health, d.Connections).SetupRoutes(router)

	if d.Config.Monitoring.PrometheusEnabled && d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.Realtime != nil {
		router.GET(d.Config.Realtime.Path, gin.WrapH(d.Realtime))
	}

	router.NoRoute(func(c *gin.Context) {
		c.Error(errNoRoute)
	})

	return router
}
