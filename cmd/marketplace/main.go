package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cropcarry/marketplace/internal/config"
	"github.com/cropcarry/marketplace/internal/db"
	marketHttp "github.com/cropcarry/marketplace/internal/handler/http"
	"github.com/cropcarry/marketplace/internal/notification"
	"github.com/cropcarry/marketplace/internal/order"
	"github.com/cropcarry/marketplace/internal/product"
	"github.com/cropcarry/marketplace/internal/report"
	"github.com/cropcarry/marketplace/internal/user"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	log.Info().Msg("Starting marketplace...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	if err := db.ApplyMigrations(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	database, err := db.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	mailer := notification.NewMailer(cfg)
	notificationRepo := notification.NewRepository(database.Pool)

	userRepo := user.NewRepository(database.Pool)
	userSvc := user.NewService(userRepo, mailer)

	productRepo := product.NewRepository(database.Pool)
	productSvc := product.NewService(productRepo)

	orderRepo := order.NewRepository(database.Pool)
	orderSvc := order.NewService(orderRepo, mailer, notificationRepo)

	sessions := marketHttp.NewSessions(cfg.App.SessionSecret, userSvc)

	router := marketHttp.NewRouter(marketHttp.Handlers{
		Auth:          marketHttp.NewAuthHandler(userSvc, sessions),
		Product:       marketHttp.NewProductHandler(productSvc, sessions),
		Cart:          marketHttp.NewCartHandler(productSvc, sessions),
		Order:         marketHttp.NewOrderHandler(orderSvc, sessions),
		Delivery:      marketHttp.NewDeliveryHandler(orderSvc, sessions),
		Notifications: marketHttp.NewNotificationHandler(notificationRepo, sessions),
	})

	reportGenerator := report.NewGenerator(report.NewRepository(database.Pool), mailer)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Report.Schedule, func() {
		runCtx, runCancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer runCancel()
		if err := reportGenerator.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("Daily sales report run failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Report.Schedule).Msg("Failed to schedule sales report")
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("port", cfg.App.Port).Msg("HTTP server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	database.Close()

	log.Info().Msg("Marketplace stopped gracefully.")
}
