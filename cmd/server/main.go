package main // Entry point package

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/library-seat-booking/internal/config"
	"github.com/iliyamo/library-seat-booking/internal/database"
	"github.com/iliyamo/library-seat-booking/internal/gateway"
	"github.com/iliyamo/library-seat-booking/internal/handler"
	"github.com/iliyamo/library-seat-booking/internal/repository"
	"github.com/iliyamo/library-seat-booking/internal/router"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable; rate limiting and caching disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	libraries := repository.NewLibraryRepo(db)
	orders := repository.NewOrderRepo(db)
	bookings := repository.NewBookingRepo(db)

	hosted := gateway.NewHosted(cfg.GatewayCheckout)
	flowHandler := handler.NewFlowHandler(cfg, hosted)

	// drop abandoned flow sessions in the background
	go func() {
		for range time.Tick(10 * time.Minute) {
			if n := flowHandler.Sweep(); n > 0 {
				log.Printf("flow: swept %d idle sessions", n)
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, rdb, router.Handlers{
		Auth:     handler.NewAuthHandler(cfg, users, tokens),
		Identity: handler.NewIdentityHandler(users),
		Browse:   handler.NewBrowseHandler(libraries, bookings),
		Orders:   handler.NewOrderHandler(db, cfg, libraries, orders, bookings),
		Flow:     flowHandler,
	})

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
