// Package main starts the HTTP server of the kaapi-store backend.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arjunvn/kaapi-store/internal/config"
	"github.com/arjunvn/kaapi-store/internal/gateway"
	"github.com/arjunvn/kaapi-store/internal/handler"
	"github.com/arjunvn/kaapi-store/internal/middleware"
	"github.com/arjunvn/kaapi-store/internal/repository"
	"github.com/arjunvn/kaapi-store/internal/service"
	"github.com/arjunvn/kaapi-store/internal/token"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	// Without gateway credentials checkout runs in simulation mode and
	// completes orders immediately.
	var paymentGateway service.PaymentGateway
	if cfg.GatewayConfigured() {
		paymentGateway = gateway.NewClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayCurrency)
		sugar.Infow("payment gateway enabled", "currency", cfg.RazorpayCurrency)
	} else {
		sugar.Info("payment gateway not configured, running in simulation mode")
	}

	svc := service.NewService(repo, paymentGateway)
	defer svc.Close()

	tokens := token.NewManager(cfg.TokenSecret)
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	h := handler.NewHandler(svc, logger, tokens, authMiddleware, cfg.CORSOrigin)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting kaapi-store server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

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
