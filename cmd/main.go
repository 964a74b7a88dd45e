package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"chatrelay/backend/internal/api/handler"
	"chatrelay/backend/internal/blob"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/identity"
	"chatrelay/backend/internal/logging"
	"chatrelay/backend/internal/storage"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupDatabase(cfg *config.Config, logger *slog.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Error("failed to connect PostgreSQL", "error", err)
		os.Exit(1)
	}
	return db
}

// setupRedis returns nil when no address is configured or the server is
// unreachable; the relay then reads history straight from the database.
func setupRedis(cfg *config.Config, logger *slog.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		logger.Info("redis disabled, recent history is not cached")
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Warn("redis unreachable, recent history is not cached", "addr", cfg.RedisAddr, "error", err)
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func setupBlobStore(cfg *config.Config, logger *slog.Logger) (blob.Store, func()) {
	if cfg.NatsURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		js, err := blob.NewJetStreamStore(ctx, cfg.NatsURL, cfg.BlobBucket)
		if err != nil {
			logger.Error("failed to open JetStream object store", "url", cfg.NatsURL, "error", err)
			os.Exit(1)
		}
		logger.Info("uploads stored in JetStream", "bucket", cfg.BlobBucket)
		return js, js.Close
	}

	disk, err := blob.NewDiskStore(cfg.UploadDir)
	if err != nil {
		logger.Error("failed to prepare upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}
	logger.Info("uploads stored on disk", "dir", cfg.UploadDir)
	return disk, func() {}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting chat relay", "addr", cfg.HTTPAddr)

	// 1. Storage
	db := setupDatabase(cfg, logger)
	rdb := setupRedis(cfg, logger)
	var cache storage.RecentCache
	if rdb != nil {
		cache = storage.NewRedisCache(rdb, "chatrelay:", cfg.RecentCacheTTL)
	}
	st := storage.NewStorageService(db, cache, logger)
	if err := st.Migrate(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if n, err := st.ResetPresence(context.Background(), time.Now().UTC()); err != nil {
		logger.Warn("failed to reset stale presence", "error", err)
	} else if n > 0 {
		logger.Info("reset stale presence", "users", n)
	}

	store, closeBlobs := setupBlobStore(cfg, logger)

	// 2. Hub and identity
	hub := chathub.NewManagerService(st, logger)
	tokens := identity.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	resolver := identity.NewResolver(tokens, logger)

	// 3. HTTP
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(hub, st, resolver, tokens, blob.NewService(store, cfg.MaxUploadBytes), cfg, logger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			// stop accepting, drain sessions, then release backends
			"relay": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				if err := server.Shutdown(ctx); err != nil {
					logger.Warn("http shutdown", "error", err)
				}
				if err := hub.Shutdown(ctx); err != nil {
					logger.Warn("hub shutdown", "error", err)
				}
				closeBlobs()
				if rdb != nil {
					_ = rdb.Close()
				}
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		},
	)

	exitCode := <-wait
	logger.Info("chat relay exited", "code", exitCode)
	os.Exit(exitCode)
}
