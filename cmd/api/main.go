package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/brightforge/storefront/internal/auth"
	"github.com/brightforge/storefront/internal/config"
	"github.com/brightforge/storefront/internal/logger"
	"github.com/brightforge/storefront/internal/mail"
	"github.com/brightforge/storefront/internal/server"
	"github.com/brightforge/storefront/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("load config: " + err.Error())
	}

	logg, err := logger.Init(cfg.Env)
	if err != nil {
		panic("init logger: " + err.Error())
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logg.Fatal("connect postgres", zap.Error(err))
	}
	defer dbPool.Close()

	mailer := mail.NewSMTPMailer(cfg.Mail)

	authRepo := auth.NewRepository(dbPool)
	authService := auth.NewService(authRepo, mailer, cfg.Auth, cfg.Mail.ClientURL)

	router := server.NewRouter(server.Dependencies{
		Config:      cfg,
		DB:          dbPool,
		AuthService: authService,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logg.Info("storefront API listening", zap.String("address", cfg.Server.Address()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logg.Info("shutting down gracefully")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("shutdown error", zap.Error(err))
	}
}
