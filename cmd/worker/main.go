package main // Background worker: queue consumer plus order expiry sweeper

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/library-seat-booking/internal/config"
	"github.com/iliyamo/library-seat-booking/internal/database"
	"github.com/iliyamo/library-seat-booking/internal/queue"
	"github.com/iliyamo/library-seat-booking/internal/repository"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	orders := repository.NewOrderRepo(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// consume order.paid events (receipt log)
	g.Go(func() error {
		return queue.StartOrderPaidConsumer(ctx)
	})

	// fail CREATED orders whose expiry passed; an expired order stops
	// blocking new order creation for its user and library
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				n, err := orders.ExpireCreatedBefore(ctx, time.Now())
				if err != nil {
					log.Printf("expiry sweep failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("expired %d unpaid orders", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("worker stopped: %v", err)
	}
	log.Println("worker shut down")
}
