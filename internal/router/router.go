package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/library-seat-booking/internal/config"
	"github.com/iliyamo/library-seat-booking/internal/handler"
	"github.com/iliyamo/library-seat-booking/internal/middleware"
)

// Handlers collects everything the router mounts.
type Handlers struct {
	Auth     *handler.AuthHandler
	Identity *handler.IdentityHandler
	Browse   *handler.BrowseHandler
	Orders   *handler.OrderHandler
	Flow     *handler.FlowHandler
}

// Register mounts all routes. Route groups get different ambient
// middleware: the public probe and browse routes are rate limited, the
// browse routes additionally cached, and everything touching orders
// requires a valid access token. Nothing order- or payment-related goes
// anywhere near the response cache.
func Register(e *echo.Echo, cfg config.Config, rdb *redis.Client, h Handlers) {
	e.GET("/healthz", handler.Health)

	limiter := middleware.RateLimit(config.LoadRateLimitConfig(), rdb)
	cache := middleware.ResponseCache(config.LoadCacheConfig(), rdb)

	// identity probe: public but rate limited, it can enumerate emails
	e.GET("/v1/users/exists", h.Identity.Exists, limiter)

	// public catalog
	browse := e.Group("/v1/libraries", limiter, cache)
	browse.GET("", h.Browse.List)
	browse.GET("/:id", h.Browse.Get)
	browse.GET("/:id/availability", h.Browse.Availability)

	// auth
	auth := e.Group("/v1/auth", limiter)
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)

	// authenticated API
	api := e.Group("/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	api.Use(middleware.RequireRole("CUSTOMER", "ADMIN"))
	api.GET("/me", h.Auth.Me)
	api.POST("/logout", h.Auth.Logout) // revoke-all needs the token's identity
	api.GET("/bookings", h.Orders.MyBookings)
	api.POST("/orders", h.Orders.Create)
	api.POST("/orders/verify", h.Orders.Verify)

	// booking flow sessions; the flow talks to the order endpoints with
	// the token the client hands it, so the group itself stays public
	fl := e.Group("/v1/flow", limiter)
	fl.POST("", h.Flow.Start)
	fl.GET("/:id", h.Flow.Get)
	fl.POST("/:id/identity", h.Flow.Identity)
	fl.POST("/:id/order", h.Flow.Order)
	fl.POST("/:id/payment", h.Flow.Payment)
	fl.POST("/:id/retry", h.Flow.Retry)
	fl.POST("/:id/restart", h.Flow.Restart)
}
