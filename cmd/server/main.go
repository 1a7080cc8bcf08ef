package main // Entry point package

import (
	"time"

	"github.com/joho/godotenv"    // loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework
	log "github.com/sirupsen/logrus"

	"github.com/unithrift/marketplace-api/internal/config"
	"github.com/unithrift/marketplace-api/internal/database"
	"github.com/unithrift/marketplace-api/internal/handler"
	"github.com/unithrift/marketplace-api/internal/payment"
	"github.com/unithrift/marketplace-api/internal/queue"
	"github.com/unithrift/marketplace-api/internal/repository"
	"github.com/unithrift/marketplace-api/internal/router"
	"github.com/unithrift/marketplace-api/internal/token"
	"github.com/unithrift/marketplace-api/internal/transaction"
)

func main() {
	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	listings := repository.NewListingRepo(db)
	sessions := repository.NewSessionRepo(db)
	payments := repository.NewPaymentRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)

	codec := token.NewMeetupCodec(cfg.JWTSecret)

	// Without a Stripe key only free transactions can complete.
	var provider transaction.PaymentProvider
	if cfg.StripeSecretKey != "" {
		provider = payment.NewClient(cfg.StripeSecretKey, cfg.StripeCurrency)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; priced checkouts will fail")
	}

	coord := transaction.New(listings, sessions, payments, provider, codec)

	// Redis is optional: without it the service runs uncached and
	// unthrottled.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable; response cache and rate limiting disabled")
	}

	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.WithError(err).Error("notification consumer stopped")
		}
	}()

	e := echo.New()
	e.HideBanner = true

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, handler.NewListingHandler(listings), rdb)
	router.RegisterTransactions(e,
		handler.NewListingHandler(listings),
		handler.NewTransactionHandler(cfg, coord, listings, payments),
		cfg.JWTSecret, rdb)

	addr := ":" + cfg.Port
	log.Infof("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
