package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zaqqye/complab_backend/internal/config"
	"github.com/zaqqye/complab_backend/internal/database"
	"github.com/zaqqye/complab_backend/internal/events"
	"github.com/zaqqye/complab_backend/internal/logging"
	"github.com/zaqqye/complab_backend/internal/presence"
	"github.com/zaqqye/complab_backend/internal/routes"
	"github.com/zaqqye/complab_backend/internal/ws"
)

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("database migration failed", zap.Error(err))
	}
	if err := database.SeedAdmin(db, cfg, logging.Component(log, "seed")); err != nil {
		log.Fatal("admin seed failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hubs := ws.NewHubs()
	hubs.Run(ctx)

	var pub events.Publisher = hubs
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, realtime stays local", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			origin := uuid.NewString()
			pub = events.Multi{hubs, events.NewRedisPublisher(rdb, cfg.RedisChannel, origin)}
			relay := events.NewRedisRelay(rdb, cfg.RedisChannel, origin, hubs, logging.Component(log, "relay"))
			go func() {
				if err := relay.Run(ctx); err != nil {
					log.Error("redis relay stopped", zap.Error(err))
				}
			}()
		}
	}

	deps := routes.NewDeps(db, cfg, log, hubs, pub, nil)

	monitor := presence.NewMonitor(deps.Presence, presence.MonitorConfig{
		Threshold:   cfg.OfflineThreshold,
		Interval:    cfg.SweepInterval,
		ItemTimeout: cfg.SweepItemTimeout,
	}, logging.Component(log, "monitor"))
	if err := monitor.Start(ctx); err != nil {
		log.Fatal("presence monitor failed to start", zap.Error(err))
	}
	defer monitor.Stop()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	routes.Register(r, deps)

	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server exited with error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
