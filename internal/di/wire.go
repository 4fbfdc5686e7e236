//go:build wireinject
// +build wireinject

package di

import (
	"BarPilot/pkg/config"
	"BarPilot/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisClient,
		ProvideMarketData,

		// Alerts
		ProvideAlertDispatcher,
		ProvideAlertSink,

		// State stores and recovery
		ProvideRewardStore,
		ProvideBudgetStore,
		ProvideBanditState,
		ProvideBudgetManager,

		// Decision pipeline
		ProvideSelector,
		ProvideAggregator,
		ProvideGate,
		ProvideGuardChain,
		ProvideCostEstimator,
		ProvideOverlayBoard,
		ProvideDecisionEngine,
		ProvideRewardUpdater,
		ProvideExecutor,

		// Emission
		ProvideDecisionHistory,
		ProvideDecisionSinks,
		ProvidePosteriorSink,

		// Loop and transports
		ProvideBarLoop,
		ProvideConsumer,
		ProvideAPIHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
