package service

import (
	"BarPilot/internal/domain/models"
)

// ArmSelector chooses one arm per bar and folds realized rewards back into
// its posterior.
type ArmSelector interface {
	Select() (string, error)
	Update(armID string, reward float64) error
	Stats() []*models.ArmStats
}

// Aggregator converts one snapshot into per-arm candidate signals. Must be
// a pure, deterministic function of its inputs.
type Aggregator interface {
	Aggregate(snap *models.SignalSnapshot) map[string]models.CandidateSignal
}

// Gate applies thresholds, consensus, overlay alignment and the
// calibration band to the chosen arm's candidate. State-free per call.
type Gate interface {
	Apply(armID string, cand models.CandidateSignal, snap *models.SignalSnapshot) models.ProvisionalDecision
}

// GuardChain is the ordered risk veto chain. Guards pass a decision
// through, zero it with a reason, or shrink alpha; they never mutate
// bandit state. Staleness is exposed separately so callers can raise an
// alert for stale market data instead of seeing only a bare veto.
type GuardChain interface {
	Check(p *models.ProvisionalDecision, ms *models.MarketState, budget *models.RiskBudget, bar int64)
	Staleness(ms *models.MarketState) error
}

// CostEstimator enforces the minimum net-edge hurdle after fees, slippage
// and market impact.
type CostEstimator interface {
	Apply(p *models.ProvisionalDecision, ms *models.MarketState, notionalUSD float64)
}
