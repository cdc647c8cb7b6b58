package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/abuiliazeed/financial-projections/internal/api"
	"github.com/abuiliazeed/financial-projections/internal/auth"
	"github.com/abuiliazeed/financial-projections/internal/config"
	"github.com/abuiliazeed/financial-projections/internal/lib/jwt"
	"github.com/abuiliazeed/financial-projections/internal/projection"
	"github.com/abuiliazeed/financial-projections/internal/storage/sqlstore"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("Starting application",
		slog.String("env", cfg.Env),
		slog.String("host", cfg.ApiHost),
		slog.Int("port", cfg.ApiPort),
		slog.String("storage", cfg.Storage.Driver),
	)

	if cfg.GeneratedSecret {
		log.Warn("JWT_SECRET is not set, using a random secret; sessions end when the process restarts")
	}

	storage, err := sqlstore.New(context.Background(), cfg.Storage.Driver, cfg.DSN())
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	authService, err := auth.New(storage, log, auth.WithCost(cfg.BcryptCost))
	if err != nil {
		log.Error("Failed to create authenticator", "error", err)
		os.Exit(1)
	}

	tokens, err := jwt.New([]byte(cfg.JWTSecret), jwt.WithTTL(cfg.TokenTTL))
	if err != nil {
		log.Error("Failed to create token codec", "error", err)
		os.Exit(1)
	}

	apiServer := api.New(cfg, log, storage, authService, tokens, projection.New(storage))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		apiServer.MustStart()
	}()

	<-sigChan
	log.Info("Got signal to shutdown server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Stopping server error", "error", err)
	}

	if err := storage.Close(); err != nil {
		log.Error("Closing storage error", "error", err)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger
	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}
	return log
}
