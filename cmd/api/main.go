package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance-tracker/internal/config"
	"finance-tracker/internal/db"
	apihttp "finance-tracker/internal/http"
	"finance-tracker/internal/repository"
	"finance-tracker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.AppDebug)
	defer logger.Sync()

	if cfg.RunMigrations {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	var (
		loginLimiter service.LoginLimiter
		tokenStore   service.RefreshTokenStore
		redisClient  *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory stores", zap.Error(err))
		} else {
			loginLimiter = service.NewRedisLoginLimiter(redisClient, cfg.LoginWindow, cfg.LoginMaxAttempts)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if loginLimiter == nil {
		loginLimiter = service.NewLoginLimiter(cfg.LoginWindow, cfg.LoginMaxAttempts)
	}

	jwtSvc, err := service.NewJWTService(service.JWTConfig{
		Secret:     cfg.JWTSecret,
		Algorithm:  cfg.JWTAlgorithm,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
		Store:      tokenStore,
	})
	if err != nil {
		logger.Fatal("jwt config", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	authSvc := service.NewAuthService(
		logger,
		userRepo,
		service.NewArgon2idHasher(),
		jwtSvc,
		loginLimiter,
		cfg.DirectoryTimeout,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := apihttp.NewMetrics(reg)

	if !cfg.AppDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	authHandler := apihttp.NewAuthHandler(logger, authSvc, metrics)
	healthHandler := apihttp.NewHealthHandler(logger, cfg.AppName, cfg.AppVersion, func(ctx context.Context) error {
		return db.Ping(ctx, pool)
	})
	router := apihttp.NewRouter(
		logger,
		apihttp.RouterOptions{
			APIPrefix:      cfg.APIPrefix,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			Gatherer:       reg,
		},
		metrics,
		apihttp.JWTAuthMiddleware(logger, jwtSvc, authSvc, metrics),
		authHandler,
		healthHandler,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("app", cfg.AppName))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func runMigrations(databaseURL string) error {
	m, err := db.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
