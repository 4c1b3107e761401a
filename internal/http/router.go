// Package http serves the admin surface: sync status, force sync, seller
// linking, lead audit trails, exhausted reminders, health and metrics.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App holds the dependencies the router wires. Populated by the
// composition root.
type App struct {
	Config     config.HTTPConfig
	Logger     *logger.Logger
	Health     HealthChecker
	Status     StatusReader
	Syncer     ForceSyncer
	Sellers    SellerStore
	Leads      LeadStore
	Tasks      TaskReader
	AttemptCap int
}

func NewRouter(app App) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	if app.Config.GetCORSAllowAll() {
		engine.Use(cors.Default())
	} else if origins := app.Config.GetCORSOrigins(); len(origins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = origins
		engine.Use(cors.New(corsCfg))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		if err := app.Health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := NewHandler(app.Status, app.Syncer, app.Sellers, app.Leads, app.Tasks, app.AttemptCap, validator.New())
	handler.RegisterRoutes(engine.Group("/api/v1"))

	return engine
}
