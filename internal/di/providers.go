package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	domsvc "BarPilot/internal/domain/service"
	"BarPilot/internal/handler/api"
	internalrepo "BarPilot/internal/repository"
	"BarPilot/internal/service/execution"
	"BarPilot/internal/service/marketdata"
	"BarPilot/internal/services/bandit"
	"BarPilot/internal/services/cost"
	"BarPilot/internal/services/gate"
	"BarPilot/internal/services/risk"
	"BarPilot/internal/services/signal"
	"BarPilot/internal/usecase"
	pkgch "BarPilot/pkg/clickhouse"
	"BarPilot/pkg/config"
	xhttp "BarPilot/pkg/http"
	pkgkafka "BarPilot/pkg/kafka"
	xlogger "BarPilot/pkg/logger"
	"BarPilot/pkg/metrics"
	"BarPilot/pkg/server"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*xlogger.Logger, error) {
	return xlogger.New(&xlogger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates the ClickHouse client and ensures the
// observability schema. Returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the bus producer. Keyed hashing keeps one
// instrument's decisions ordered within a partition.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithProducerBrokers(cfg.Kafka.Brokers...),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAlertDispatcher wires alert aggregation to the alert topic.
func ProvideAlertDispatcher(cfg *config.Config, producer *pkgkafka.Producer, log *xlogger.Logger) *xlogger.AlertDispatcher {
	return xlogger.NewAlertDispatcher(xlogger.AlertConfig{
		Topic:     cfg.Kafka.AlertTopic,
		Publisher: internalrepo.NewKafkaAlertPublisher(producer),
	}, log)
}

// ProvideAlertSink exposes the dispatcher under the domain interface.
func ProvideAlertSink(d *xlogger.AlertDispatcher) drepo.AlertSink {
	return d
}

// ProvideRedisClient creates the Redis client for the overlay board.
// Returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvideOverlayBoard wraps Redis as the shared overlay direction board.
func ProvideOverlayBoard(client *redis.Client, cfg *config.Config) drepo.OverlayBoard {
	if client == nil {
		return nil
	}
	return internalrepo.NewRedisOverlayBoard(client, cfg.Redis.Prefix)
}

// ProvideMarketData creates the WebSocket market-state client.
func ProvideMarketData(cfg *config.Config, log *xlogger.Logger) *marketdata.Client {
	return marketdata.New(
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.APIKey,
		[]string{cfg.Engine.Symbol},
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
		log,
	)
}

// ProvideRewardStore creates the bandit state file store.
func ProvideRewardStore(cfg *config.Config) drepo.RewardStore {
	return internalrepo.NewFileRewardStore(cfg.State.BanditPath)
}

// ProvideBudgetStore creates the risk budget file store.
func ProvideBudgetStore(cfg *config.Config) drepo.BudgetStore {
	return internalrepo.NewFileBudgetStore(cfg.State.BudgetPath)
}

// ProvideBanditState recovers persisted posteriors and open reward
// attributions. Nil means a cold start.
func ProvideBanditState(store drepo.RewardStore) (*models.BanditState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.Load(ctx)
}

// ProvideSelector builds the Thompson selector, seeded from recovered
// state when present.
func ProvideSelector(cfg *config.Config, state *models.BanditState) (domsvc.ArmSelector, error) {
	var recovered map[string]*models.ArmStats
	if state != nil {
		recovered = state.Arms
	}
	return bandit.New(
		cfg.Engine.Arms,
		cfg.Engine.PriorMu,
		cfg.Engine.PriorSigma,
		cfg.Engine.Seed,
		recovered,
	)
}

// ProvideBudgetManager recovers the risk budget, with config as the
// authority for the daily cap.
func ProvideBudgetManager(cfg *config.Config, store drepo.BudgetStore) (*risk.BudgetManager, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return risk.NewBudgetManager(ctx, store, cfg.Engine.DailyCapUSD(), cfg.Engine.CooldownBars)
}

// ProvideAggregator builds the per-arm candidate aggregator.
func ProvideAggregator(cfg *config.Config) domsvc.Aggregator {
	return signal.New(signal.Config{
		Arms: cfg.Engine.Arms,
		SMin: cfg.Engine.SMin,
	})
}

// ProvideGate builds the consensus and threshold gate.
func ProvideGate(cfg *config.Config) domsvc.Gate {
	return gate.New(gate.Config{
		SMin:                cfg.Engine.SMin,
		MMin:                cfg.Engine.MMin,
		ConfMin:             cfg.Engine.ConfMin,
		AlphaMin:            cfg.Engine.AlphaMin,
		BandBps:             cfg.Engine.BandBps,
		RequireConsensus:    cfg.Engine.RequireConsensus,
		OverlayVetoBand:     cfg.Engine.OverlayVetoBand,
		OverlayConflictMult: cfg.Engine.OverlayConflictMult,
		CalibA:              cfg.Engine.CalibA,
		CalibB:              cfg.Engine.CalibB,
	})
}

// ProvideGuardChain builds the risk guard chain.
func ProvideGuardChain(cfg *config.Config) domsvc.GuardChain {
	return risk.New(risk.Config{
		SpreadCapBps:   cfg.Engine.SpreadCapBps,
		VolMin:         cfg.Engine.VolMin,
		VolMax:         cfg.Engine.VolMax,
		LiquidityMin:   cfg.Engine.LiquidityMin,
		MaxDataAge:     cfg.Engine.MaxDataAge,
		MaxFundingAge:  cfg.Engine.MaxFundingAge,
		MaxPositionUSD: cfg.Engine.MaxPositionUSD,
		EquityUSD:      cfg.Engine.EquityUSD,
	})
}

// ProvideCostEstimator builds the transaction cost model.
func ProvideCostEstimator(cfg *config.Config) domsvc.CostEstimator {
	return cost.New(cost.Config{
		FeeBps:          cfg.Engine.FeeBps,
		SlippageBps:     cfg.Engine.SlippageBps,
		ImpactK:         cfg.Engine.ImpactK,
		SafetyBufferBps: cfg.Engine.SafetyBufferBps,
	})
}

// ProvideDecisionEngine assembles the per-bar decision pipeline.
func ProvideDecisionEngine(
	cfg *config.Config,
	agg domsvc.Aggregator,
	selector domsvc.ArmSelector,
	g domsvc.Gate,
	guards domsvc.GuardChain,
	costs domsvc.CostEstimator,
	overlays drepo.OverlayBoard,
	market *marketdata.Client,
	m drepo.Metrics,
	alerts drepo.AlertSink,
	log *xlogger.Logger,
) *usecase.DecisionEngine {
	return usecase.NewDecisionEngine(cfg.Engine, agg, selector, g, guards, costs, overlays, market, m, alerts, log)
}

// ProvideRewardUpdater builds the delayed reward attributor, recovering
// open attributions from persisted state.
func ProvideRewardUpdater(
	cfg *config.Config,
	selector domsvc.ArmSelector,
	store drepo.RewardStore,
	budget *risk.BudgetManager,
	m drepo.Metrics,
	alerts drepo.AlertSink,
	log *xlogger.Logger,
	state *models.BanditState,
) *usecase.RewardUpdater {
	var open []models.OpenReward
	if state != nil {
		open = state.Open
	}
	return usecase.NewRewardUpdater(selector, store, budget, m, alerts, log, cfg.Engine.RewardTimeoutBars, open)
}

// ProvideExecutor wraps the paper executor with bounded retries.
func ProvideExecutor(cfg *config.Config, market *marketdata.Client) drepo.Executor {
	paper := execution.NewPaperExecutor(market)
	return execution.NewRetryExecutor(paper, cfg.Engine.ExecRetries, cfg.Engine.ExecBackoffMin, cfg.Engine.ExecBackoffMax)
}

// ProvideDecisionHistory creates the ClickHouse decision history when
// ClickHouse is enabled.
func ProvideDecisionHistory(client *pkgch.Client, cfg *config.Config) *internalrepo.ClickHouseHistory {
	if client == nil {
		return nil
	}
	return internalrepo.NewClickHouseHistory(client.DB(), cfg.ClickHouse.Database)
}

// ProvideDecisionSinks collects every decision sink: the bus is always
// on, ClickHouse history when enabled.
func ProvideDecisionSinks(producer *pkgkafka.Producer, cfg *config.Config, history *internalrepo.ClickHouseHistory) []drepo.DecisionSink {
	sinks := []drepo.DecisionSink{
		internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.DecisionTopic),
	}
	if history != nil {
		sinks = append(sinks, history)
	}
	return sinks
}

// ProvidePosteriorSink exposes history as the posterior sink, or nil.
func ProvidePosteriorSink(history *internalrepo.ClickHouseHistory) drepo.PosteriorSink {
	if history == nil {
		return nil
	}
	return history
}

// ProvideBarLoop assembles the bar-clocked cycle handler.
func ProvideBarLoop(
	cfg *config.Config,
	engine *usecase.DecisionEngine,
	rewards *usecase.RewardUpdater,
	budget *risk.BudgetManager,
	executor drepo.Executor,
	sinks []drepo.DecisionSink,
	posterior drepo.PosteriorSink,
	m drepo.Metrics,
	log *xlogger.Logger,
) *usecase.BarLoop {
	return usecase.NewBarLoop(
		cfg.Engine, cfg.Kafka.SnapshotTopic,
		engine, rewards, budget, executor,
		sinks, posterior, cfg.Instance, m, log,
	)
}

// ProvideConsumer binds the bar loop to the snapshot topic.
func ProvideConsumer(cfg *config.Config, loop *usecase.BarLoop, log *xlogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(loop, log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers...),
		pkgkafka.WithGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideAPIHandler builds the observability HTTP handler.
func ProvideAPIHandler(
	log *xlogger.Logger,
	history *internalrepo.ClickHouseHistory,
	engine *usecase.DecisionEngine,
	budget *risk.BudgetManager,
	chClient *pkgch.Client,
	market *marketdata.Client,
) xhttp.Handler {
	deps := map[string]api.HealthChecker{
		"market_data": market,
	}
	if chClient != nil {
		deps["clickhouse"] = chClient
	}
	var hist drepo.DecisionHistory
	if history != nil {
		hist = history
	}
	return api.NewEngineHandler(log, hist, engine, budget, deps)
}

// ProvideApp creates the application server.
func ProvideApp(
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
) *server.App {
	return server.New(cfg, log, consumer, producer, market, budget, alerts, handler, chClient, redisClient)
}
