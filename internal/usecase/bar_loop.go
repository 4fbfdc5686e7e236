package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	"BarPilot/internal/services/risk"
	"BarPilot/pkg/config"
	pkgkafka "BarPilot/pkg/kafka"
	xlogger "BarPilot/pkg/logger"
)

// BarLoop is one timeframe instance's bar-clocked cooperative loop. It
// consumes per-bar snapshots from the bus, settles the previous bar's
// reward, runs one decision cycle under the wall-clock budget, executes
// the order intent, and emits the final decision. Cycles never overlap:
// the loop is single-threaded by construction and a mutex backstops the
// transport.
type BarLoop struct {
	cfg       config.Engine
	topic     string
	engine    *DecisionEngine
	rewards   *RewardUpdater
	budget    *risk.BudgetManager
	executor  drepo.Executor
	sinks     []drepo.DecisionSink
	posterior drepo.PosteriorSink
	instance  string
	metrics   drepo.Metrics
	log       *xlogger.Logger

	mu      sync.Mutex
	lastBar int64
}

func NewBarLoop(
	cfg config.Engine,
	topic string,
	engine *DecisionEngine,
	rewards *RewardUpdater,
	budget *risk.BudgetManager,
	executor drepo.Executor,
	sinks []drepo.DecisionSink,
	posterior drepo.PosteriorSink,
	instance string,
	metrics drepo.Metrics,
	log *xlogger.Logger,
) *BarLoop {
	return &BarLoop{
		cfg: cfg, topic: topic, engine: engine, rewards: rewards,
		budget: budget, executor: executor, sinks: sinks,
		posterior: posterior, instance: instance, metrics: metrics,
		log: log, lastBar: -1,
	}
}

// Topic implements the bus handler contract.
func (l *BarLoop) Topic() string { return l.topic }

// Handle decodes one snapshot message and runs the cycle. Snapshots for
// other instruments or timeframes are skipped; replayed or out-of-order
// bars are dropped so at most one decision exists per bar.
func (l *BarLoop) Handle(ctx context.Context, b []byte) error {
	var snap models.SignalSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		l.metrics.RecordError("snapshot_unmarshal")
		return err
	}
	if snap.Symbol != l.cfg.Symbol || snap.Timeframe != l.cfg.Timeframe {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if snap.BarIndex <= l.lastBar {
		l.metrics.RecordError("snapshot_replay")
		l.log.Warn("dropping replayed bar",
			xlogger.Int64("bar", snap.BarIndex), xlogger.Int64("last", l.lastBar))
		return nil
	}
	l.lastBar = snap.BarIndex

	l.Cycle(ctx, &snap)
	return nil
}

// Cycle runs one full bar: settle rewards, decide, execute, emit.
func (l *BarLoop) Cycle(ctx context.Context, snap *models.SignalSnapshot) {
	start := time.Now()

	// Reward attribution first: the bandit must see bar t's realized
	// reward before it selects for bar t+1.
	l.rewards.OnBarClose(ctx, snap)

	cycleCtx, cancel := context.WithTimeout(ctx, l.cfg.CycleBudget)
	defer cancel()

	d, err := l.engine.DecideBar(cycleCtx, snap, l.budget.Budget())
	if err != nil {
		// Only fatal misconfiguration reaches here; everything else
		// degrades to a vetoed decision.
		l.metrics.RecordError("decide_fatal")
		l.log.Error("decision cycle failed", xlogger.Error(err))
		return
	}

	if d.Actionable() {
		d = l.execute(cycleCtx, d, snap)
	}

	l.emit(ctx, d)
	l.metrics.RecordLatency("bar_cycle", time.Since(start).Seconds())
}

// execute submits the order intent. Non-filled results mean no position
// change: the decision is downgraded to HOLD with an execution veto before
// it is emitted.
func (l *BarLoop) execute(ctx context.Context, d *models.Decision, snap *models.SignalSnapshot) *models.Decision {
	notional := d.Alpha * l.cfg.EquityUSD
	qty := 0.0
	if snap.Close > 0 {
		qty = notional / snap.Close
	}
	req := models.OrderRequest{
		EventID:   d.EventID,
		Symbol:    d.Symbol,
		Side:      models.Side(d.Direction),
		Qty:       qty,
		OrderType: "market",
	}

	res, err := l.executor.Submit(ctx, req)
	if err != nil || !res.Filled() {
		if err != nil {
			l.log.Error("execution failed", xlogger.Error(err), xlogger.String("event_id", d.EventID))
		} else {
			l.log.Warn("order not filled",
				xlogger.String("event_id", d.EventID), xlogger.String("reason", res.Reason))
		}
		l.metrics.RecordError("execution_rejected")
		held := *d
		held.VetoReasons = append(held.VetoReasons, models.VetoExecRejected)
		held.Direction = 0
		held.Alpha = 0
		return &held
	}

	if err := l.budget.ApplyFill(ctx, qty*float64(d.Direction), notional); err != nil {
		l.log.Error("budget fill update failed", xlogger.Error(err))
	}
	l.rewards.Open(ctx, d, snap.Close, notional)

	l.log.Info("order filled",
		xlogger.String("event_id", d.EventID),
		xlogger.String("side", req.Side),
		xlogger.Float64("qty", qty),
		xlogger.Float64("fill_price", res.FillPrice),
	)
	return d
}

func (l *BarLoop) emit(ctx context.Context, d *models.Decision) {
	for _, sink := range l.sinks {
		if err := sink.Emit(ctx, d); err != nil {
			l.metrics.RecordError("decision_emit")
			l.log.Error("decision emit failed", xlogger.Error(err))
		}
	}
	if l.posterior != nil {
		if err := l.posterior.Snapshot(ctx, l.instance, l.engine.Stats(), d.Timestamp); err != nil {
			l.metrics.RecordError("posterior_snapshot")
			l.log.Warn("posterior snapshot failed", xlogger.Error(err))
		}
	}
}

var _ pkgkafka.MessageHandler = (*BarLoop)(nil)
