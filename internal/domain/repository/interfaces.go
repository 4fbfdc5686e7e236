package repository

import (
	"context"
	"time"

	"BarPilot/internal/domain/models"
)

// RewardStore persists and recovers bandit posterior state (arm stats plus
// pending reward attributions). Implementations must write atomically so a
// crash mid-save cannot corrupt the posterior.
type RewardStore interface {
	Load(ctx context.Context) (*models.BanditState, error)
	Save(ctx context.Context, st *models.BanditState) error
}

// BudgetStore persists the per-instance risk budget across restarts.
type BudgetStore interface {
	Load(ctx context.Context) (*models.RiskBudget, error)
	Save(ctx context.Context, b *models.RiskBudget) error
}

// DecisionSink receives emitted decisions. Sinks are observability-only:
// they never feed back into engine state.
type DecisionSink interface {
	Emit(ctx context.Context, d *models.Decision) error
	Close() error
}

// DecisionHistory is the queryable decision record store backing the
// observability API.
type DecisionHistory interface {
	DecisionSink
	Recent(ctx context.Context, symbol, timeframe string, limit int) ([]*models.Decision, error)
}

// PosteriorSink receives periodic arm-statistics snapshots for external
// observability. External sinks only read them.
type PosteriorSink interface {
	Snapshot(ctx context.Context, instance string, arms []*models.ArmStats, at time.Time) error
}

// OverlayBoard exposes higher-timeframe overlay directions published by
// upstream collaborators. Strictly read-only for the engine.
type OverlayBoard interface {
	Directions(ctx context.Context, symbol string) (map[string]int, error)
}

// SnapshotSource delivers per-bar signal snapshots from the upstream
// pipeline.
type SnapshotSource interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.SignalSnapshot, <-chan error)
	Close() error
}

// MarketData exposes the latest market-quality state for a symbol.
type MarketData interface {
	State(ctx context.Context, symbol string) (*models.MarketState, error)
}

// Executor is the external execution adapter. Any non-filled result means
// no position change.
type Executor interface {
	Submit(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
}

// AlertSink receives operational alerts (stale data, numeric anomalies).
type AlertSink interface {
	Alert(ctx context.Context, kind, msg string, fields map[string]interface{}) error
}

// Metrics records operational metrics for the engine.
type Metrics interface {
	RecordDecision(arm string, direction int, vetoed bool)
	RecordVeto(reason string)
	RecordReward(arm string, reward float64)
	RecordArmPosterior(arm string, pulls int64, mean, variance float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
