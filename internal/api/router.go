package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/pushrelay/pushrelay/internal/app"
	"github.com/pushrelay/pushrelay/internal/handlers"
	"github.com/pushrelay/pushrelay/internal/middleware"
	"github.com/pushrelay/pushrelay/internal/realtime"
	"github.com/pushrelay/pushrelay/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, hub *realtime.Hub, dispatcher *services.Dispatcher, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub must be provided")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	if rl := cfg.Relay.RateLimit; rl.Enabled {
		r.Use(middleware.RateLimit(rl.MaxRequests, rl.Window))
	}

	// Health endpoint (public)
	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}

	// Websocket entry point
	rtHandler := handlers.NewRealtimeHandler(hub, dispatcher)
	r.GET("/ws", rtHandler.Stream)

	api := r.Group("/api")

	notificationHandler, err := handlers.NewNotificationHandler(dispatcher, dispatcher.Notifications())
	if err != nil {
		return nil, err
	}
	registerNotificationRoutes(api, notificationHandler)

	userHandler, err := handlers.NewUserHandler(dispatcher.Users())
	if err != nil {
		return nil, err
	}
	registerUserRoutes(api, userHandler)

	// Metrics endpoint
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
