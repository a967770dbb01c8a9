package main // Entry point package

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/food-delivery-api/internal/auth"
	"github.com/iliyamo/food-delivery-api/internal/config"
	"github.com/iliyamo/food-delivery-api/internal/database"
	"github.com/iliyamo/food-delivery-api/internal/handler"
	"github.com/iliyamo/food-delivery-api/internal/middleware"
	"github.com/iliyamo/food-delivery-api/internal/oauth"
	"github.com/iliyamo/food-delivery-api/internal/queue"
	"github.com/iliyamo/food-delivery-api/internal/repository"
	"github.com/iliyamo/food-delivery-api/internal/router"
	notifier "github.com/iliyamo/food-delivery-api/internal/service"
)

func main() {
	// Load .env if present; real deployments set variables directly.
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTTLMin, cfg.RefreshTTLDays)
	gate := middleware.NewAuthGate(tokens, sessions)

	// Redis is optional: without it the rate limiter becomes a no-op.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, rate limiting disabled")
	}
	rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	authH := handler.NewAuthHandler(cfg, users, sessions, tokens, notifier.QueuePublisher{})
	oauthH := handler.NewOAuthHandler(cfg, oauth.NewRegistry(cfg), users, sessions, tokens)
	adminH := handler.NewAdminHandler(users)

	// Dev-mode notification worker; production points a real gateway at the
	// same queue.
	go func() {
		if err := queue.StartNotificationConsumer(); err != nil {
			log.Printf("notification consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, oauthH, gate, rl)
	router.RegisterAdmin(e, adminH, gate)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
