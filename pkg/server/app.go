package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"BarPilot/internal/service/marketdata"
	"BarPilot/internal/services/risk"
	pkgch "BarPilot/pkg/clickhouse"
	"BarPilot/pkg/config"
	xhttp "BarPilot/pkg/http"
	pkgkafka "BarPilot/pkg/kafka"
	xlogger "BarPilot/pkg/logger"
)

// App owns the process lifecycle: the market-data stream, the snapshot
// consumer, the daily budget reset and the observability HTTP server.
type App struct {
	cfg        *config.Config
	log        *xlogger.Logger
	consumer   *pkgkafka.Consumer
	producer   *pkgkafka.Producer
	market     *marketdata.Client
	budget     *risk.BudgetManager
	alerts     *xlogger.AlertDispatcher
	httpServer *xhttp.Server
	chClient   *pkgch.Client
	redis      *redis.Client
	cron       *cron.Cron
}

// New assembles the application from its wired dependencies. Nil
// ClickHouse and Redis clients mean those surfaces are disabled.
func New(
	cfg *config.Config,
	log *xlogger.Logger,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	market *marketdata.Client,
	budget *risk.BudgetManager,
	alerts *xlogger.AlertDispatcher,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	redisClient *redis.Client,
) *App {
	httpServer := xhttp.NewServer(handler, log,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithRateLimit(cfg.Server.RateLimitRPS),
	)
	return &App{
		cfg:        cfg,
		log:        log,
		consumer:   consumer,
		producer:   producer,
		market:     market,
		budget:     budget,
		alerts:     alerts,
		httpServer: httpServer,
		chClient:   chClient,
		redis:      redisClient,
	}
}

// Run starts all services and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.market.Connect(ctx); err != nil {
		// The stream reconnects on its own; decisions degrade to
		// stale-data vetoes until it is back.
		a.log.Warn("market data connect failed, will retry", xlogger.Error(err))
	}

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(a.cfg.Engine.DailyResetCron, func() {
		if err := a.budget.ResetDaily(context.Background(), time.Now().UTC()); err != nil {
			a.log.Error("daily budget reset failed", xlogger.Error(err))
		} else {
			a.log.Info("daily risk budget reset")
		}
	}); err != nil {
		return err
	}
	a.cron.Start()

	a.consumer.Start(ctx)
	a.log.Info("snapshot consumer started",
		xlogger.String("topic", a.cfg.Kafka.SnapshotTopic),
		xlogger.String("symbol", a.cfg.Engine.Symbol),
		xlogger.String("timeframe", a.cfg.Engine.Timeframe))

	if err := a.httpServer.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops ingestion first so no decision cycle is in flight, then
// closes the emit and infrastructure surfaces.
func (a *App) shutdown(ctx context.Context) error {
	cronCtx := a.cron.Stop()
	<-cronCtx.Done()

	if err := a.consumer.Stop(); err != nil {
		a.log.Warn("consumer stop failed", xlogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Warn("http shutdown failed", xlogger.Error(err))
	}

	if err := a.market.Close(); err != nil {
		a.log.Warn("market data close failed", xlogger.Error(err))
	}

	a.alerts.Close()

	if err := a.producer.Close(); err != nil {
		a.log.Warn("producer close failed", xlogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close failed", xlogger.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", xlogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
