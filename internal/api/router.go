package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/tradepost/internal/app"
	iauth "github.com/charlesng35/tradepost/internal/auth"
	"github.com/charlesng35/tradepost/internal/handlers"
	"github.com/charlesng35/tradepost/internal/middleware"
	"github.com/charlesng35/tradepost/internal/monitoring"
	"github.com/charlesng35/tradepost/internal/realtime"
	"github.com/charlesng35/tradepost/internal/services"
)

// Dependencies bundles the long-lived services the HTTP surface is built on.
type Dependencies struct {
	JWT         *iauth.JWTService
	Profiles    *services.ProfileService
	Resolver    *services.ProfileResolver
	Views       *services.ProfileViewService
	Permissions *services.ContactPermissionService
	SecurityLog *services.SecurityLog
	Hub         *realtime.Hub
	Health      *monitoring.HealthManager
}

func (d Dependencies) validate() error {
	switch {
	case d.JWT == nil:
		return fmt.Errorf("jwt service must be provided")
	case d.Profiles == nil, d.Resolver == nil, d.Views == nil:
		return fmt.Errorf("profile services must be provided")
	case d.Permissions == nil:
		return fmt.Errorf("contact permission service must be provided")
	case d.SecurityLog == nil:
		return fmt.Errorf("security log must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(cfg *app.Config, deps Dependencies) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit(cfg.HTTP.RateLimit.RPS, cfg.HTTP.RateLimit.Burst))

	registerHealthRoutes(r, deps.Health)
	registerMonitoringRoutes(r, cfg.Monitoring)

	profileHandler, err := handlers.NewProfileHandler(deps.Profiles, deps.Resolver, deps.Views)
	if err != nil {
		return nil, err
	}
	permissionHandler, err := handlers.NewContactPermissionHandler(deps.Permissions)
	if err != nil {
		return nil, err
	}
	securityHandler, err := handlers.NewSecurityHandler(deps.SecurityLog)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")

	// Profile reads are open to anonymous viewers; contact details stay gated.
	public := api.Group("")
	public.Use(middleware.OptionalAuth(deps.JWT))
	registerPublicProfileRoutes(public, profileHandler)

	protected := api.Group("")
	protected.Use(middleware.Auth(deps.JWT))
	registerProfileRoutes(protected, profileHandler)
	registerContactPermissionRoutes(protected, permissionHandler)
	registerSecurityRoutes(protected, securityHandler)

	if deps.Hub != nil {
		registerRealtimeRoutes(api, handlers.NewRealtimeHandler(deps.Hub, deps.JWT))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerHealthRoutes(r *gin.Engine, health *monitoring.HealthManager) {
	r.GET("/health", handlers.Health())
	r.GET("/health/ready", handlers.Readiness(health))
}

func registerMonitoringRoutes(r *gin.Engine, cfg app.MonitoringConfig) {
	if !cfg.Prometheus.Enabled {
		return
	}
	endpoint := strings.TrimSpace(cfg.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(promhttp.Handler()))
}

func registerPublicProfileRoutes(group *gin.RouterGroup, handler *handlers.ProfileHandler) {
	profiles := group.Group("/profiles")
	{
		profiles.GET("/:id", handler.Get)
		profiles.GET("/:id/view", handler.View)
	}
}

func registerProfileRoutes(group *gin.RouterGroup, handler *handlers.ProfileHandler) {
	profile := group.Group("/profile")
	{
		profile.GET("", handler.GetOwn)
		profile.PUT("", handler.UpdateOwn)
	}
}

func registerContactPermissionRoutes(group *gin.RouterGroup, handler *handlers.ContactPermissionHandler) {
	permissions := group.Group("/contact-permissions")
	{
		permissions.POST("", handler.Request)
		permissions.GET("/incoming", handler.ListIncoming)
		permissions.GET("/outgoing", handler.ListOutgoing)
		permissions.GET("/check/:ownerID", handler.Check)
		permissions.POST("/:id/approve", handler.Approve)
		permissions.POST("/:id/reject", handler.Reject)
		permissions.DELETE("/requesters/:requesterID", handler.Revoke)
	}
}

func registerSecurityRoutes(group *gin.RouterGroup, handler *handlers.SecurityHandler) {
	group.GET("/security/events", handler.Events)
}

func registerRealtimeRoutes(group *gin.RouterGroup, handler *handlers.RealtimeHandler) {
	group.GET("/realtime", handler.Stream)
}
