package server

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightforge/storefront/internal/auth"
	"github.com/brightforge/storefront/internal/config"
	"github.com/brightforge/storefront/internal/metrics"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	DB          *pgxpool.Pool
	AuthService *auth.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
// Catalog resource routers mount under the same /v1 group and guard their
// admin surfaces with auth.Middleware + auth.RequireAdmin.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group("/v1")
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService)
	}

	return router
}
