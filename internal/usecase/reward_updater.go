package usecase

import (
	"context"
	"time"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	domsvc "BarPilot/internal/domain/service"
	"BarPilot/internal/services/risk"
	xlogger "BarPilot/pkg/logger"
)

// RewardUpdater is the OPEN -> CLOSED attribution state machine. A
// position-affecting decision at bar t opens a record; the record closes
// against bar t+1's close price, feeding the realized reward back into the
// bandit. OPEN records that outlive the timeout (restart gaps) are dropped
// and logged, never retroactively fabricated.
type RewardUpdater struct {
	selector    domsvc.ArmSelector
	store       drepo.RewardStore
	budget      *risk.BudgetManager
	metrics     drepo.Metrics
	alerts      drepo.AlertSink
	log         *xlogger.Logger
	timeoutBars int64

	open map[int64]models.OpenReward // keyed by bar index
}

func NewRewardUpdater(
	selector domsvc.ArmSelector,
	store drepo.RewardStore,
	budget *risk.BudgetManager,
	metrics drepo.Metrics,
	alerts drepo.AlertSink,
	log *xlogger.Logger,
	timeoutBars int64,
	recovered []models.OpenReward,
) *RewardUpdater {
	u := &RewardUpdater{
		selector: selector, store: store, budget: budget,
		metrics: metrics, alerts: alerts, log: log,
		timeoutBars: timeoutBars,
		open:        make(map[int64]models.OpenReward, len(recovered)),
	}
	for _, r := range recovered {
		u.open[r.BarIndex] = r
	}
	return u
}

// OnBarClose settles pending attributions against the newly closed bar.
// Called at the start of every cycle, before the new decision is made, so
// the bandit sees the reward before it selects again. Attribution for bar
// t uses only bar t+1 data: no look-ahead.
func (u *RewardUpdater) OnBarClose(ctx context.Context, snap *models.SignalSnapshot) {
	for barIdx, rec := range u.open {
		switch {
		case barIdx+1 == snap.BarIndex && rec.EntryClose > 0 && snap.Close > 0:
			u.settle(ctx, rec, snap)
			delete(u.open, barIdx)

		case snap.BarIndex-barIdx > u.timeoutBars:
			// Recoverable gap: the bar that would have closed this record
			// was never observed (restart, feed outage). Skip the reward.
			u.metrics.RecordError("reward_gap")
			_ = u.alerts.Alert(ctx, "reward_gap", "open reward timed out without a closing bar", map[string]interface{}{
				"event_id": rec.EventID, "arm": rec.Arm,
				"opened_bar": rec.BarIndex, "current_bar": snap.BarIndex,
			})
			delete(u.open, barIdx)
		}
	}
	u.persist(ctx)
}

func (u *RewardUpdater) settle(ctx context.Context, rec models.OpenReward, snap *models.SignalSnapshot) {
	// The raw signal value already carries the side: a short is a negative
	// raw, so a falling close earns a positive reward. Folding the direction
	// in again would cancel the sign and punish correct shorts.
	moveBps := (snap.Close/rec.EntryClose - 1) * 1e4
	realizedBps := moveBps * float64(rec.Direction)
	reward := moveBps * rec.Raw

	if err := u.selector.Update(rec.Arm, reward); err != nil {
		// NaN/Inf rewards leave posterior state untouched.
		u.metrics.RecordError("reward_update")
		_ = u.alerts.Alert(ctx, "reward_rejected", err.Error(), map[string]interface{}{
			"event_id": rec.EventID, "arm": rec.Arm,
		})
		return
	}
	u.metrics.RecordReward(rec.Arm, reward)
	for _, a := range u.selector.Stats() {
		u.metrics.RecordArmPosterior(a.ID, a.Pulls, a.Mean, a.Variance())
	}

	if u.budget != nil {
		pnlUSD := realizedBps / 1e4 * rec.Notional
		if err := u.budget.ApplyClose(ctx, snap.BarIndex, pnlUSD, rec.Notional); err != nil {
			u.log.Error("budget close failed", xlogger.Error(err))
		}
	}

	u.log.Info("reward settled",
		xlogger.String("event_id", rec.EventID),
		xlogger.String("arm", rec.Arm),
		xlogger.Float64("realized_bps", realizedBps),
		xlogger.Float64("reward", reward),
	)
}

// Open registers a position-affecting decision for next-bar attribution.
// Exactly one OPEN record can exist per bar index.
func (u *RewardUpdater) Open(ctx context.Context, d *models.Decision, entryClose, notionalUSD float64) {
	if !d.Actionable() {
		return
	}
	u.open[d.BarIndex] = models.OpenReward{
		EventID:    d.EventID,
		Arm:        d.ChosenArm,
		BarIndex:   d.BarIndex,
		Direction:  d.Direction,
		Raw:        d.ChosenRaw,
		EntryClose: entryClose,
		Notional:   notionalUSD,
		OpenedAt:   time.Now().UTC(),
	}
	u.persist(ctx)
}

// Pending returns the number of unsettled attributions.
func (u *RewardUpdater) Pending() int { return len(u.open) }

// persist writes posterior plus OPEN set atomically so a crash between
// bars recovers into a consistent attribution state.
func (u *RewardUpdater) persist(ctx context.Context) {
	st := &models.BanditState{
		Arms:    make(map[string]*models.ArmStats),
		Open:    make([]models.OpenReward, 0, len(u.open)),
		SavedAt: time.Now().UTC(),
	}
	for _, a := range u.selector.Stats() {
		st.Arms[a.ID] = a
	}
	for _, rec := range u.open {
		st.Open = append(st.Open, rec)
	}
	if err := u.store.Save(ctx, st); err != nil {
		u.metrics.RecordError("state_save")
		u.log.Error("bandit state save failed", xlogger.Error(err))
	}
}
