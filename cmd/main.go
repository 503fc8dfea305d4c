package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/satriahrh/jembatan/internal/api"
	"github.com/satriahrh/jembatan/internal/auth"
	"github.com/satriahrh/jembatan/internal/config"
	"github.com/satriahrh/jembatan/internal/observe"
	"github.com/satriahrh/jembatan/internal/websocket"
)

func main() {
	// .env is optional, real deployments set the environment directly.
	godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	shutdownMetrics, err := observe.InitProvider(context.Background(), observe.ProviderConfig{})
	if err != nil {
		logger.Fatal("Failed to initialize metrics provider", zap.Error(err))
	}

	// Cancelled on shutdown so every live session closes with a
	// server_shutdown reason before the listener stops.
	sessionsCtx, stopSessions := context.WithCancel(context.Background())

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	hub := websocket.NewHub(logger)
	go hub.Run()

	api.InitRoutes(e, &api.Deps{
		Ctx:     sessionsCtx,
		Cfg:     cfg,
		Hub:     hub,
		Authn:   auth.NewAuthenticator(cfg.JWTSecret),
		Metrics: observe.DefaultMetrics(),
		Logger:  logger,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Bridge server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	stopSessions()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := shutdownMetrics(ctx); err != nil {
		logger.Error("Metrics provider shutdown failed", zap.Error(err))
	}

	logger.Info("Server exited")
}
