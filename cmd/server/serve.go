package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/farmer-objection-service/internal/config"
	"github.com/iliyamo/farmer-objection-service/internal/database"
	"github.com/iliyamo/farmer-objection-service/internal/handler"
	"github.com/iliyamo/farmer-objection-service/internal/metrics"
	"github.com/iliyamo/farmer-objection-service/internal/middleware"
	"github.com/iliyamo/farmer-objection-service/internal/queue"
	"github.com/iliyamo/farmer-objection-service/internal/repository"
	"github.com/iliyamo/farmer-objection-service/internal/router"
	"github.com/iliyamo/farmer-objection-service/internal/service"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the notification consumer when RabbitMQ is configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(parent context.Context, cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := dbSettings(cfg)
	db, err := database.OpenWithRetry(ctx, s, cfg.DBConnectRetries, cfg.DBConnectDelay, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := database.Migrate(s, log); err != nil {
			return err
		}
	}

	m := metrics.New()
	objections := repository.NewObjectionRepo(db, m)
	farmers := repository.NewFarmerRepo(db, m)
	resets := repository.NewPasswordResetRepo(db, m)

	var events service.Publisher = queue.Nop{}
	if cfg.RabbitURL != "" {
		events = queue.NewPublisher(cfg.RabbitURL, log)
	} else {
		log.Info("RABBITMQ_URL not set, domain events are disabled")
	}

	lifecycle := service.NewLifecycleManager(objections, events, log)
	queries := service.NewQueryEngine(objections)
	accounts := service.NewAccountService(service.AccountConfig{
		JWTSecret:     cfg.JWTSecret,
		AccessTTLMin:  cfg.AccessTTLMin,
		BcryptCost:    cfg.BcryptCost,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		ResetTTL:      cfg.PasswordResetTTL,
	}, farmers, resets, events, log)

	rl, rdb, err := rateLimiter(log)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	e := router.New(router.Handlers{
		Auth:      handler.NewAuthHandler(accounts, log, cfg.RequestDBTimeout),
		Farmer:    handler.NewFarmerObjectionHandler(lifecycle, log, cfg.RequestDBTimeout),
		Admin:     handler.NewAdminObjectionHandler(lifecycle, queries, log, cfg.RequestDBTimeout),
		Health:    handler.NewHealthHandler(db, log),
		RateLimit: rl,
		JWTSecret: cfg.JWTSecret,
	}, m, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(e, cfg, log)
	})
	if cfg.RabbitURL != "" {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.NotifyLogDir, log)
		g.Go(func() error { return consumer.Run(gctx) })
	}
	return g.Wait()
}

func shutdown(e *echo.Echo, cfg config.Config, log *zap.Logger) error {
	log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(ctx)
}

// rateLimiter builds the token bucket for the account endpoints. Redis is
// optional: without it the buckets live in process memory.
func rateLimiter(log *zap.Logger) (echo.MiddlewareFunc, *redis.Client, error) {
	rlCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return nil, nil, err
	}
	if !rlCfg.Enabled {
		return middleware.NewTokenBucket(rlCfg, nil, log), nil, nil
	}
	redisCfg, err := config.LoadRedisConfig()
	if err != nil {
		return nil, nil, err
	}
	rdb := config.NewRedisClient(redisCfg)
	if rdb == nil {
		log.Warn("redis unreachable, using in-process rate limit buckets", zap.String("addr", redisCfg.Address()))
	}
	return middleware.NewTokenBucket(rlCfg, rdb, log), rdb, nil
}
