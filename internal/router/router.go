package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/unithrift/marketplace-api/internal/config"
	"github.com/unithrift/marketplace-api/internal/handler"
	"github.com/unithrift/marketplace-api/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication on
// the provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies
// the necessary middleware.  Unauthenticated operations live under
// /v1/auth, while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Logout accepts either a bearer access token (revoke all sessions)
	// or a refresh_token body (revoke one session), so it is registered
	// outside the JWT middleware.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers unauthenticated browse endpoints.  Guests can
// view the catalogue and individual listings without a session.  When a
// Redis client is available the responses are served through the
// read-through cache.
func RegisterPublic(e *echo.Echo, l *handler.ListingHandler, rdb *redis.Client) {
	var mw []echo.MiddlewareFunc
	if rdb != nil {
		mw = append(mw, middleware.NewRedisCache(config.LoadCacheConfig(), rdb))
	}
	e.GET("/v1/listings", l.Browse, mw...)
	e.GET("/v1/listings/:id", l.Get, mw...)
}
