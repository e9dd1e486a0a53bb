package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/api"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/api/handler"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/config"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/filestore"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/postgres"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/rabbitmq"
	redisinfra "github.com/sanosuguru/go-bus-seat-reservation/internal/infrastructure/redis"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/metrics"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/realtime"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger.Init(cfg.Env)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("設定が不正です", zap.Error(err))
	}

	if err := run(cfg); err != nil {
		logger.Fatal("サーバーが異常終了しました", zap.Error(err))
	}
	logger.Info("サーバーが正常にシャットダウンしました")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.Init()

	// Redis
	redisClient := redisinfra.NewClient(&cfg.Redis)
	defer redisClient.Close()
	if err := redisinfra.Ping(ctx, redisClient); err != nil {
		return err
	}
	store := redisinfra.NewSeatLockStore(redisClient, redisinfra.WithReleaseLockOnHold(cfg.Lock.ReleaseLockOnHold))
	seatCache := redisinfra.NewSeatCache(redisClient)

	// カタログ・予約台帳
	cat, err := filestore.LoadCatalog(cfg.Ledger.DataDir)
	if err != nil {
		return err
	}
	checks := []handler.HealthCheck{{Name: "redis", Check: func(ctx context.Context) error {
		return redisinfra.Ping(ctx, redisClient)
	}}}

	var ledger booking.Ledger
	switch cfg.Ledger.Driver {
	case config.LedgerDriverPostgres:
		db, err := postgres.NewConnection(&cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.RunMigrations(db.DB, cfg.Ledger.MigrationsPath); err != nil {
			return err
		}
		ledger = postgres.NewBookingLedger(db)
		checks = append(checks, handler.HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
			return postgres.Ping(ctx, db)
		}})
	default:
		ledger = filestore.NewLedger(cfg.Ledger.DataDir)
	}
	logger.Info("予約台帳を初期化しました", zap.String("driver", cfg.Ledger.Driver))

	// サービス
	hub := realtime.NewHub()
	hub.SetMetrics(m)

	detector := worker.NewExpiryDetector(store, ledger, hub, cfg.Lock.ExpiryPollInterval)
	detector.SetMetrics(m)

	seatService := application.NewSeatService(store, cat, ledger, seatCache)

	lockService := application.NewSeatLockService(store, cat, ledger, cfg.Lock.HoldTTL, cfg.Lock.LockTTL)
	lockService.SetBroadcaster(hub)
	lockService.SetReleaseObserver(detector)
	lockService.SetMetrics(m)

	bookingService := application.NewBookingService(ledger, store, cat, seatService, cfg.Ticket.Secret)
	bookingService.SetBroadcaster(hub)
	bookingService.SetMetrics(m)

	if cfg.Messaging.RabbitMQURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.Messaging.RabbitMQURL, cfg.Messaging.Queue)
		if err != nil {
			// 通知は補助機能のため起動は継続する
			logger.Warn("予約イベント通知を無効化します", zap.Error(err))
		} else {
			defer publisher.Close()
			bookingService.SetPublisher(publisher)
		}
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	middleware.SetupMiddleware(e, cfg.Server.CORSOrigin)
	e.Use(middleware.PrometheusMiddleware(m))

	handler.RegisterRoutes(e, handler.Routes{
		Seats:    handler.NewSeatHandler(lockService, seatService),
		Bookings: handler.NewBookingHandler(bookingService),
		Catalog:  handler.NewCatalogHandler(seatService),
		Health:   handler.NewHealthHandler(checks...),
		WebSocket: realtime.NewServer(hub, realtime.Services{
			Locks:    lockService,
			Seats:    seatService,
			Bookings: bookingService,
		}, cfg.Server.CORSOrigin),
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), middleware.MetricsBasicAuth(middleware.LoadMetricsConfig()))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		detector.Start(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("サーバーを起動します", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("サーバーをシャットダウンしています...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Shutdown はハイジャック済みのwebsocket接続を待たないため先に閉じる
		hub.CloseAll()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
