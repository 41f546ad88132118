// Package main starts the luckybox HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jmshop/luckybox-system/internal/config"
	"github.com/jmshop/luckybox-system/internal/gateway"
	"github.com/jmshop/luckybox-system/internal/handler"
	"github.com/jmshop/luckybox-system/internal/middleware"
	"github.com/jmshop/luckybox-system/internal/repository"
	"github.com/jmshop/luckybox-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var gw *gateway.Client
	if cfg.GatewayAddress != "" {
		gw = gateway.NewClient(cfg.GatewayAddress, cfg.GatewayClientID, cfg.GatewayAPIKey)
	}

	var svc *service.Service
	if gw != nil {
		svc = service.NewService(repo, gw)
	} else {
		svc = service.NewService(repo, nil)
	}
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Background confirmation of gateway payments whose callback was lost
	g.Go(func() error {
		svc.StartPaymentReconciler(ctx)
		return nil
	})

	// HTTP server
	g.Go(func() error {
		sugar.Infow("starting luckybox server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown on context cancellation (signal or error elsewhere)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
