package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"partsledger/internal/cache"
	"partsledger/internal/config"
	"partsledger/internal/httpapi"
	"partsledger/internal/logging"
	"partsledger/internal/service"
	"partsledger/internal/store"
	"partsledger/internal/store/memory"
	mongostore "partsledger/internal/store/mongo"
	pgstore "partsledger/internal/store/postgres"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid LOG_LEVEL: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable; refusing to start with in-memory fallback",
			zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}
	logger.Info("repository ready", zap.String("driver", cfg.StoreDriver))

	var productCache cache.ProductCache = cache.NoopProductCache{}
	var locker cache.Locker = cache.NoopLocker{}
	if cfg.RedisAddr != "" {
		redis := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redis.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop cache and locks", zap.Error(err))
			_ = redis.Close()
		} else {
			productCache = redis.ProductCache()
			locker = redis.Locker(time.Duration(cfg.LockTTLSeconds)*time.Second, logger)
			closers = append(closers, redis.Close)
			logger.Info("cache: redis", zap.String("addr", cfg.RedisAddr))
		}
	} else {
		logger.Info("cache: noop")
	}

	svc := service.New(repo, productCache, locker, time.Duration(cfg.ProductCacheTTLSeconds)*time.Second, logger)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("parts ledger listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, func() error, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("apply schema: %w", err)
		}
		return pg, pg.Close, nil
	case config.DriverMongo:
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		if err := mg.EnsureIndexes(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return mg, mg.Close, nil
	default:
		return memory.NewSeeded(logger), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return cfg.ValidateStore()
}
