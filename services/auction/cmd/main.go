package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sakashimaa/go-auction-next/pkg/auth"
	"github.com/sakashimaa/go-auction-next/pkg/broker"
	"github.com/sakashimaa/go-auction-next/pkg/config"
	"github.com/sakashimaa/go-auction-next/pkg/db"
	"github.com/sakashimaa/go-auction-next/pkg/metrics"
	outbox "github.com/sakashimaa/go-auction-next/pkg/outbox/repository"
	"github.com/sakashimaa/go-auction-next/pkg/outbox/worker"
	"github.com/sakashimaa/go-auction-next/pkg/server"
	"github.com/sakashimaa/go-auction-next/pkg/utils"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/repository"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/service"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/transport/consumer"
	"github.com/sakashimaa/go-auction-next/services/auction/internal/transport/http"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not found, using system envs")
	}

	cfg := config.MustLoad()
	if cfg.Service == "" {
		cfg.Service = service.Source
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, cfg.Service, cfg.Env, cfg.Tracing.Endpoint, cfg.Tracing.SampleRatio)
	if err != nil {
		log.Fatalf("Error init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := db.RunMigrations(cfg.Postgres.Migrations, cfg.Postgres.URL); err != nil {
		log.Fatalf("Error running migrations: %v", err)
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Error creating new postgres DB: %v", err)
	}

	publisher, err := broker.NewPublisher(cfg.Broker)
	if err != nil {
		log.Fatalf("Error creating %s publisher: %v", cfg.Broker.Kind, err)
	}

	reg := metrics.NewRegistry()

	auctionRepository := repository.NewAuctionRepository(pool, logger)
	outboxRepository := outbox.NewOutboxRepository(pool, logger)
	auctionService := service.NewAuctionService(auctionRepository, outboxRepository, pool, logger)
	faultHandler := service.NewFaultHandler(auctionRepository, outboxRepository, pool, logger).WithMetrics(reg)

	// Background loops share pool and publisher, which are closed only after
	// every loop returned.
	var workers sync.WaitGroup

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepository, publisher, cfg.Outbox, logger).
		WithMetrics(reg, cfg.Service)
	workers.Go(func() { outboxProcessor.Start(ctx) })

	eventConsumer := consumer.NewConsumer(auctionService, faultHandler, logger)
	workers.Go(func() {
		if err := eventConsumer.Start(ctx, cfg.Broker); err != nil {
			logger.Error("Consumer stopped", zap.Error(err))
			stop()
		}
	})

	app := server.NewApp(cfg.Service, cfg.Limiter, reg)
	http.RegisterRoutes(
		app,
		http.NewAuctionHandler(auctionService, logger, cfg.HTTP.Timeout),
		auth.NewAuthMiddleware(cfg.Auth.AccessSecret),
	)

	go func() {
		log.Println("HTTP Auction service listening on port: " + cfg.HTTP.Port)
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening HTTP on port %v: %v", cfg.HTTP.Port, err)
		}
	}()

	logger.Info("auction service started!")

	<-ctx.Done()

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	} else {
		log.Println("Stopped HTTP server successfully")
	}

	workers.Wait()
	log.Println("Background workers stopped")

	if err := publisher.Close(); err != nil {
		log.Printf("Error closing publisher: %v", err)
	}

	pool.Close()
	log.Println("Closed db pool successfully")

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping telemetry: %v\n", err)
	} else {
		log.Println("Telemetry closed correctly")
	}
}
