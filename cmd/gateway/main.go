package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"approval-gateway/config"
	"approval-gateway/internal/adapter/backend"
	httpHandler "approval-gateway/internal/adapter/http/handler"
	pgStorage "approval-gateway/internal/adapter/storage/postgres"
	redisStorage "approval-gateway/internal/adapter/storage/redis"
	"approval-gateway/internal/core/ports"
	"approval-gateway/internal/service"
	"approval-gateway/internal/store"
	"approval-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("GATEWAY_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("backend", cfg.Backend.URL).
		Msg("Starting approval gateway")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis: history, secure store, rate limits
	rdb, err := redisStorage.NewClient(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	encSvc, err := service.NewAESEncryptionService(cfg.Device.SecretKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service (set device.secret_key)")
	}
	secureStore := redisStorage.NewSecureStore(rdb, encSvc)
	historyStore := redisStorage.NewHistoryStore(rdb, cfg.Storage.HistoryKey)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	healthCheckers := []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)}

	// Optional PostgreSQL decision audit log
	var decisionLog ports.DecisionLogRepository
	if cfg.Database.Enabled {
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		if err := pgStorage.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare decision log schema")
		}
		decisionLog = pgStorage.NewDecisionLogRepo(pool)
		healthCheckers = append(healthCheckers, pgStorage.NewHealthCheck(pool))
		log.Info().Msg("PostgreSQL decision log enabled")
	}

	backendClient := backend.NewClient(cfg.Backend, nil, log)

	deviceSvc := service.NewDeviceService(secureStore, backendClient, cfg.Device, log)
	identity, err := deviceSvc.Init(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize device identity")
	}
	log.Info().
		Str("token", logger.RedactToken(identity.Token)).
		Bool("registered", identity.Registered).
		Msg("Device identity ready")

	repo := store.NewApprovals()

	persister := service.NewHistoryPersister(repo, historyStore, log)
	loaded, err := persister.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("History could not be loaded, starting empty")
	}
	log.Info().Int("records", loaded).Msg("History loaded")
	persister.Attach()

	syncOpts := []service.SyncOption{}
	if decisionLog != nil {
		syncOpts = append(syncOpts, service.WithDecisionLog(decisionLog))
	}
	engine := service.NewSyncEngine(repo, backendClient, deviceSvc, cfg.Sync, log, syncOpts...)
	decoder := service.NewNotificationDecoder(repo, log)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		persister.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		engine.Run(ctx)
	}()

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Sync:           engine,
		Approvals:      repo,
		Device:         deviceSvc,
		Notifications:  decoder,
		DecisionLog:    decisionLog,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		Server:         cfg.Server,
		Logger:         logger.Component(log, "http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	engine.Close()
	workers.Wait()

	log.Info().Msg("Gateway exited")
}
