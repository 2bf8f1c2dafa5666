package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-pos/internal/config"
	"github.com/iliyamo/restaurant-pos/internal/handler"
	"github.com/iliyamo/restaurant-pos/internal/logger"
	"github.com/iliyamo/restaurant-pos/internal/middleware"
	"github.com/iliyamo/restaurant-pos/internal/pos"
	"github.com/iliyamo/restaurant-pos/internal/queue"
	"github.com/iliyamo/restaurant-pos/internal/router"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis serves the rate limiter and, optionally, the store.
	var rdb *redis.Client
	if cfg.RateLimit.Enabled || cfg.Storage.Backend == config.BackendRedis {
		rdb = config.NewRedisClient(cfg.Redis)
		if rdb == nil {
			log.Warnw("redis unreachable, rate limiting disabled", "addr", cfg.Redis.Address())
		} else {
			defer func() { _ = rdb.Close() }()
		}
	}

	store, closeStore, err := openStore(ctx, cfg, rdb, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warnw("closing storage backend failed", "error", err)
		}
	}()

	app, err := pos.New(ctx, store, cfg.App(), log)
	if err != nil {
		return fmt.Errorf("init pos: %w", err)
	}

	if cfg.AMQP.Enabled {
		fw := queue.NewForwarder(queue.NewPublisher(cfg.AMQP.URL, queue.EventsQueue, log.Named("publisher")), cfg.AMQP.Buffer, log.Named("forwarder"))
		fw.Start(app.Bus)
		defer fw.Stop()
		if cfg.AMQP.ConsumerEnabled {
			go func() {
				if err := queue.StartPaymentConsumer(ctx, cfg.AMQP.URL, cfg.LogDir, log.Named("consumer")); err != nil && !errors.Is(err, context.Canceled) {
					log.Errorw("payment consumer stopped", "error", err)
				}
			}()
		}
	}

	go maintenanceLoop(ctx, app, cfg.Storage.MaintenanceEvery, log)

	e := echo.New()
	e.HideBanner = true
	limiter := middleware.NewTokenBucket(cfg.RateLimit, rdb)
	auth := handler.NewAuthHandler(app.Settings, cfg.JWTSecret, cfg.AccessTTLMin)
	router.RegisterRoutes(e)
	router.RegisterAuth(e, auth, limiter)
	router.RegisterPOS(e, handler.NewPOSHandler(app), limiter)
	router.RegisterManager(e, handler.NewManagerHandler(app), auth, cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", addr, "backend", cfg.Storage.Backend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Errorw("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
	if err := app.Close(shutdownCtx); err != nil {
		log.Errorw("flushing pending writes failed", "error", err)
		return err
	}
	log.Info("stopped")
	return nil
}

func maintenanceLoop(ctx context.Context, app *pos.App, every time.Duration, log *zap.SugaredLogger) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := app.PerformMaintenance(ctx); err != nil {
				log.Warnw("maintenance failed", "error", err)
			}
		}
	}
}
