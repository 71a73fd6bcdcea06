package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-events/internal/auth"
	"github.com/example/ride-events/internal/config"
	"github.com/example/ride-events/internal/events"
	httpapi "github.com/example/ride-events/internal/http"
	"github.com/example/ride-events/internal/hub"
	"github.com/example/ride-events/internal/logging"
	"github.com/example/ride-events/internal/presence"
	"github.com/example/ride-events/internal/rides"
	"github.com/example/ride-events/internal/storage"
	"github.com/example/ride-events/internal/users"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(os.Stdout, cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.UsingDefaultSecret() {
		logger.Warn("JWT_SECRET not set, using the local development secret")
	}

	var rideStore storage.RideStore
	var userStore storage.UserStore
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			if err := runMigrations(cfg.PGDSN); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		rideStore, userStore = ps, ps
		logger.Info("using postgres store")
	} else {
		ms := storage.NewMemoryStore()
		rideStore, userStore = ms, ms
		logger.Warn("PG_DSN not set, using in-memory store")
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		logger.Error("token manager init failed", "error", err)
		os.Exit(1)
	}

	notifyHub := hub.New(logger, cfg.HubWriteTimeout)

	var tracker presence.Tracker = presence.NopTracker{}
	if cfg.RedisAddr != "" {
		rt := presence.NewRedisTracker(cfg.RedisAddr, cfg.RedisPassword, cfg.PresenceTTL)
		defer rt.Close()
		tracker = rt
		logger.Info("presence tracking enabled", "redis_addr", cfg.RedisAddr)
	}

	rideSvc := rides.NewService(rideStore, userStore, notifyHub, logger)
	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		rideSvc.SetPublisher(producer)
		logger.Info("audit stream enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	userSvc := users.NewService(userStore, tokens)

	srv := httpapi.NewServer(cfg, logger, rideSvc, userSvc, notifyHub, tokens, tracker)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-events listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	notifyHub.Shutdown()
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
