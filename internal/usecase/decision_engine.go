package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	domsvc "BarPilot/internal/domain/service"
	"BarPilot/pkg/config"
	xlogger "BarPilot/pkg/logger"
)

// DecisionEngine runs one decision cycle per bar: aggregate candidates,
// let the bandit pick an arm (exactly once, even when the bar ends in
// HOLD), gate the chosen candidate, run the risk chain and the cost model,
// and assemble the final immutable Decision.
type DecisionEngine struct {
	cfg      config.Engine
	agg      domsvc.Aggregator
	selector domsvc.ArmSelector
	gate     domsvc.Gate
	guards   domsvc.GuardChain
	cost     domsvc.CostEstimator
	overlays drepo.OverlayBoard
	market   drepo.MarketData
	metrics  drepo.Metrics
	alerts   drepo.AlertSink
	log      *xlogger.Logger
}

func NewDecisionEngine(
	cfg config.Engine,
	agg domsvc.Aggregator,
	selector domsvc.ArmSelector,
	gate domsvc.Gate,
	guards domsvc.GuardChain,
	cost domsvc.CostEstimator,
	overlays drepo.OverlayBoard,
	market drepo.MarketData,
	metrics drepo.Metrics,
	alerts drepo.AlertSink,
	log *xlogger.Logger,
) *DecisionEngine {
	return &DecisionEngine{
		cfg: cfg, agg: agg, selector: selector, gate: gate, guards: guards,
		cost: cost, overlays: overlays, market: market, metrics: metrics,
		alerts: alerts, log: log,
	}
}

// DecideBar produces the single Decision for one closed bar. The context
// carries the cycle's wall-clock budget; on overrun the decision degrades
// to HOLD with a cycle_timeout veto rather than executing against a stale
// snapshot.
func (e *DecisionEngine) DecideBar(ctx context.Context, snap *models.SignalSnapshot, budget *models.RiskBudget) (*models.Decision, error) {
	start := time.Now()

	e.checkNumerics(ctx, snap)

	// Merge board overlays under the snapshot's own values: the upstream
	// pipeline wins when both publish the same timeframe. The incoming
	// snapshot stays untouched; merging works on a shallow copy.
	snap = e.withBoardOverlays(ctx, snap)

	candidates := e.agg.Aggregate(snap)

	armID, err := e.selector.Select()
	if err != nil {
		return nil, err
	}
	cand := candidates[armID]

	p := e.gate.Apply(armID, cand, snap)

	// Snapshot-level freshness: a late-arriving snapshot is as dangerous
	// as a stale quote. Forced HOLD, alerted, never silently passed.
	if snap.DataAge > e.cfg.MaxDataAge || (e.cfg.MaxFundingAge > 0 && snap.FundingAge > e.cfg.MaxFundingAge) {
		stale := &models.DataStaleError{Kind: "snapshot", Age: snap.DataAge, Threshold: e.cfg.MaxDataAge}
		_ = e.alerts.Alert(ctx, "stale_data", stale.Error(), map[string]interface{}{
			"symbol": snap.Symbol, "bar": snap.BarIndex,
		})
		p.Veto(models.VetoStaleData)
	}

	ms, merr := e.market.State(ctx, snap.Symbol)
	if merr != nil {
		// No market-quality view means the spread/staleness guards cannot
		// run; force HOLD and alert rather than trading blind.
		var stale *models.DataStaleError
		kind := "market_data_unavailable"
		if errors.As(merr, &stale) {
			kind = "stale_data"
		}
		_ = e.alerts.Alert(ctx, kind, merr.Error(), map[string]interface{}{
			"symbol": snap.Symbol, "bar": snap.BarIndex,
		})
		p.Veto(models.VetoStaleData)
	} else {
		// Market-quality staleness mirrors the snapshot path: the chain
		// vetoes it, the engine makes it visible.
		if serr := e.guards.Staleness(ms); serr != nil {
			_ = e.alerts.Alert(ctx, "stale_data", serr.Error(), map[string]interface{}{
				"symbol": snap.Symbol, "bar": snap.BarIndex,
			})
		}
		e.guards.Check(&p, ms, budget, snap.BarIndex)
		e.cost.Apply(&p, ms, p.Alpha*e.cfg.EquityUSD)
	}

	if ctx.Err() != nil {
		p.Veto(models.VetoCycleTimeout)
	}

	d := &models.Decision{
		EventID:     uuid.NewString(),
		Timestamp:   snap.Timestamp,
		Symbol:      snap.Symbol,
		Timeframe:   snap.Timeframe,
		BarIndex:    snap.BarIndex,
		Direction:   p.Direction,
		Alpha:       p.Alpha,
		ChosenArm:   armID,
		ChosenRaw:   p.Raw,
		PredCalBps:  p.PredCalBps,
		VetoReasons: p.VetoReasons,
	}

	e.metrics.RecordDecision(armID, d.Direction, len(d.VetoReasons) > 0)
	for _, r := range d.VetoReasons {
		e.metrics.RecordVeto(string(r))
	}
	e.metrics.RecordLatency("decide_bar", time.Since(start).Seconds())

	e.log.Info("decision",
		xlogger.String("event_id", d.EventID),
		xlogger.Int64("bar", d.BarIndex),
		xlogger.String("arm", d.ChosenArm),
		xlogger.Int("direction", d.Direction),
		xlogger.Float64("alpha", d.Alpha),
		xlogger.Float64("pred_cal_bps", d.PredCalBps),
		xlogger.Any("vetoes", d.VetoReasons),
	)
	return d, nil
}

// checkNumerics alerts on NaN/Inf snapshot fields. The aggregator already
// flattens non-finite inputs; this makes the anomaly visible instead of
// silently producing a threshold veto.
func (e *DecisionEngine) checkNumerics(ctx context.Context, snap *models.SignalSnapshot) {
	report := func(where string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			anom := &models.NumericAnomaly{Where: where, Value: v}
			e.metrics.RecordError("numeric_anomaly")
			_ = e.alerts.Alert(ctx, "numeric_anomaly", anom.Error(), map[string]interface{}{
				"symbol": snap.Symbol, "bar": snap.BarIndex,
			})
		}
	}
	report("s_top", snap.STop)
	report("s_bot", snap.SBot)
	report("mood", snap.Mood)
	for tf, p := range snap.Probs {
		report("p_down:"+tf, p.PDown)
		report("p_up:"+tf, p.PUp)
	}
}

func (e *DecisionEngine) withBoardOverlays(ctx context.Context, snap *models.SignalSnapshot) *models.SignalSnapshot {
	if e.overlays == nil {
		return snap
	}
	dirs, err := e.overlays.Directions(ctx, snap.Symbol)
	if err != nil {
		e.metrics.RecordError("overlay_board")
		e.log.Warn("overlay board unavailable", xlogger.Error(err))
		return snap
	}
	if len(dirs) == 0 {
		return snap
	}
	merged := *snap
	merged.Overlays = make(map[string]int, len(dirs)+len(snap.Overlays))
	for tf, dir := range dirs {
		merged.Overlays[tf] = dir
	}
	for tf, dir := range snap.Overlays {
		merged.Overlays[tf] = dir
	}
	return &merged
}

// Stats exposes the live arm posteriors for the observability surfaces.
func (e *DecisionEngine) Stats() []*models.ArmStats { return e.selector.Stats() }
