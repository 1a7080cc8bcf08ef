package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/unithrift/marketplace-api/internal/config"
	"github.com/unithrift/marketplace-api/internal/handler"
	"github.com/unithrift/marketplace-api/internal/middleware"
)

// RegisterTransactions registers the authenticated listing and
// transaction lifecycle endpoints under /v1.  All routes require a
// valid JWT; the lifecycle guards themselves (owner-only reserve,
// counterparty-only confirm and checkout) live in the coordinator.
// When a Redis client is available the mutation routes are also rate
// limited per user.
func RegisterTransactions(e *echo.Echo, l *handler.ListingHandler, t *handler.TransactionHandler, jwtSecret string, rdb *redis.Client) {
	mw := []echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret)}
	if rdb != nil {
		mw = append(mw, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))
	}
	g := e.Group("/v1", mw...)

	// Listing management.
	g.POST("/listings", l.Create)
	g.GET("/my-listings", l.Mine)
	g.DELETE("/listings/:id", l.Delete)

	// Transaction lifecycle, in order of occurrence.
	g.POST("/listings/:id/reserve", t.Reserve)
	g.POST("/listings/:id/cancel-reservation", t.CancelReservation)
	g.POST("/listings/:id/meetup-token", t.MeetupToken)
	g.POST("/meetup/confirm", t.ConfirmMeetup)
	g.POST("/listings/:id/checkout", t.BeginCheckout)
	g.POST("/listings/:id/payment-result", t.PaymentResult)
	g.GET("/listings/:id/session", t.Session)
}
