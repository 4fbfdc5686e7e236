package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPilot/internal/domain/models"
	"BarPilot/internal/services/bandit"
	"BarPilot/internal/services/risk"
	xlogger "BarPilot/pkg/logger"
)

type updaterFixture struct {
	updater  *RewardUpdater
	selector *bandit.Thompson
	store    *memRewardStore
	budget   *risk.BudgetManager
	metrics  *fakeMetrics
	alerts   *fakeAlerts
}

func newUpdaterFixture(t *testing.T, recovered []models.OpenReward) *updaterFixture {
	t.Helper()
	selector, err := bandit.New([]string{models.ArmModelMeta, models.ArmPros}, 0, 25, 1, nil)
	require.NoError(t, err)

	budget, err := risk.NewBudgetManager(context.Background(), &memBudgetStore{}, 1000, 3)
	require.NoError(t, err)

	f := &updaterFixture{
		selector: selector,
		store:    &memRewardStore{},
		budget:   budget,
		metrics:  newFakeMetrics(),
		alerts:   &fakeAlerts{},
	}
	f.updater = NewRewardUpdater(selector, f.store, budget, f.metrics, f.alerts,
		xlogger.Nop(), 3, recovered)
	return f
}

func actionableDecision(bar int64) *models.Decision {
	return &models.Decision{
		EventID:   "evt-1",
		Symbol:    "BTCUSDT",
		Timeframe: "5m",
		BarIndex:  bar,
		Direction: 1,
		Alpha:     0.13,
		ChosenArm: models.ArmModelMeta,
		ChosenRaw: 0.6,
	}
}

func closingSnapshot(bar int64, close float64) *models.SignalSnapshot {
	return &models.SignalSnapshot{
		Symbol:    "BTCUSDT",
		Timeframe: "5m",
		BarIndex:  bar,
		Timestamp: time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC),
		Close:     close,
	}
}

func TestOpen_RegistersActionableDecisionOnly(t *testing.T) {
	f := newUpdaterFixture(t, nil)
	ctx := context.Background()

	held := actionableDecision(100)
	held.VetoReasons = []models.VetoReason{models.VetoBand}
	held.Direction = 0
	f.updater.Open(ctx, held, 65_000, 6500)
	assert.Zero(t, f.updater.Pending())

	f.updater.Open(ctx, actionableDecision(100), 65_000, 6500)
	assert.Equal(t, 1, f.updater.Pending())

	// Persisted immediately for crash recovery.
	require.NotNil(t, f.store.state)
	require.Len(t, f.store.state.Open, 1)
	assert.Equal(t, "evt-1", f.store.state.Open[0].EventID)
}

func TestOnBarClose_SettlesAgainstNextBar(t *testing.T) {
	f := newUpdaterFixture(t, nil)
	ctx := context.Background()

	f.updater.Open(ctx, actionableDecision(100), 65_000, 6500)

	// Bar 101 closes 20 bps higher on a long: reward = 20 * 0.6 = 12.
	f.updater.OnBarClose(ctx, closingSnapshot(101, 65_130))

	assert.Zero(t, f.updater.Pending())
	require.Len(t, f.metrics.rewards[models.ArmModelMeta], 1)
	assert.InDelta(t, 12.0, f.metrics.rewards[models.ArmModelMeta][0], 1e-9)

	for _, s := range f.selector.Stats() {
		if s.ID == models.ArmModelMeta {
			assert.Equal(t, int64(1), s.Pulls)
			assert.InDelta(t, 12.0, s.Mean, 1e-9)
		}
	}
}

func TestOnBarClose_LossBooksIntoBudgetWithCooldown(t *testing.T) {
	f := newUpdaterFixture(t, nil)
	ctx := context.Background()

	f.updater.Open(ctx, actionableDecision(100), 65_000, 6500)
	require.NoError(t, f.budget.ApplyFill(ctx, 0.1, 6500))

	// Bar 101 closes 20 bps lower: pnl = -20/1e4 * 6500 = -13 USD.
	f.updater.OnBarClose(ctx, closingSnapshot(101, 64_870))

	b := f.budget.Budget()
	assert.InDelta(t, 13.0, b.DailyLossUSD, 1e-9)
	assert.Zero(t, b.PositionNotional)
	assert.Equal(t, int64(104), b.CooldownUntilBar)

	require.Len(t, f.metrics.rewards[models.ArmModelMeta], 1)
	assert.InDelta(t, -12.0, f.metrics.rewards[models.ArmModelMeta][0], 1e-9)
}

func TestOnBarClose_ShortRewardFollowsSignalCorrectness(t *testing.T) {
	// The negative raw already encodes the short side, so a falling close
	// must reinforce the arm and a rising close must penalize it. Folding
	// the direction in twice would flip both.
	tests := []struct {
		name       string
		nextClose  float64
		wantReward float64
	}{
		{"correct short on a falling close", 64_870, 12.0}, // -20 bps * -0.6
		{"wrong short on a rising close", 65_130, -12.0},   // +20 bps * -0.6
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUpdaterFixture(t, nil)
			ctx := context.Background()

			d := actionableDecision(100)
			d.Direction = -1
			d.ChosenRaw = -0.6
			f.updater.Open(ctx, d, 65_000, 6500)
			f.updater.OnBarClose(ctx, closingSnapshot(101, tt.nextClose))

			require.Len(t, f.metrics.rewards[models.ArmModelMeta], 1)
			assert.InDelta(t, tt.wantReward, f.metrics.rewards[models.ArmModelMeta][0], 1e-9)
		})
	}
}

func TestOnBarClose_ShortPnLStaysDirectional(t *testing.T) {
	f := newUpdaterFixture(t, nil)
	ctx := context.Background()

	d := actionableDecision(100)
	d.Direction = -1
	d.ChosenRaw = -0.6
	f.updater.Open(ctx, d, 65_000, 6500)
	require.NoError(t, f.budget.ApplyFill(ctx, 0.1, 6500))

	// The short loses when price rises: pnl = -20/1e4 * 6500 = -13 USD,
	// even though the bandit reward for the wrong call is negative too.
	f.updater.OnBarClose(ctx, closingSnapshot(101, 65_130))

	assert.InDelta(t, 13.0, f.budget.Budget().DailyLossUSD, 1e-9)
}

func TestOnBarClose_PendingRecordWaitsInsideTimeout(t *testing.T) {
	f := newUpdaterFixture(t, nil)
	ctx := context.Background()

	f.updater.Open(ctx, actionableDecision(100), 65_000, 6500)

	// Bar 102 skipped bar 101; the gap (2) is inside the timeout (3), so
	// the record stays pending rather than settling against the wrong bar.
	f.updater.OnBarClose(ctx, closingSnapshot(102, 65_130))

	assert.Equal(t, 1, f.updater.Pending())
	assert.Empty(t, f.metrics.rewards[models.ArmModelMeta])
}

func TestOnBarClose_GapTimeoutDropsRecord(t *testing.T) {
	f := newUpdaterFixture(t, nil)
	ctx := context.Background()

	f.updater.Open(ctx, actionableDecision(100), 65_000, 6500)
	f.updater.OnBarClose(ctx, closingSnapshot(110, 65_130))

	assert.Zero(t, f.updater.Pending())
	assert.True(t, f.alerts.has("reward_gap"))
	assert.Equal(t, 1, f.metrics.errors["reward_gap"])

	// The posterior never saw a fabricated reward.
	for _, s := range f.selector.Stats() {
		assert.Zero(t, s.Pulls)
	}
}

func TestOnBarClose_RecoversPendingAttributionsAcrossRestart(t *testing.T) {
	recovered := []models.OpenReward{{
		EventID:    "evt-prev",
		Arm:        models.ArmPros,
		BarIndex:   200,
		Direction:  1,
		Raw:        0.5,
		EntryClose: 60_000,
		Notional:   5000,
		OpenedAt:   time.Now().UTC(),
	}}
	f := newUpdaterFixture(t, recovered)
	require.Equal(t, 1, f.updater.Pending())

	// 10 bps up on the recovered long: reward = 10 * 0.5 = 5.
	f.updater.OnBarClose(context.Background(), closingSnapshot(201, 60_060))

	assert.Zero(t, f.updater.Pending())
	require.Len(t, f.metrics.rewards[models.ArmPros], 1)
	assert.InDelta(t, 5.0, f.metrics.rewards[models.ArmPros][0], 1e-9)
}

func TestOnBarClose_PersistsStateEveryBar(t *testing.T) {
	f := newUpdaterFixture(t, nil)
	ctx := context.Background()

	f.updater.Open(ctx, actionableDecision(100), 65_000, 6500)
	f.updater.OnBarClose(ctx, closingSnapshot(101, 65_130))

	require.NotNil(t, f.store.state)
	assert.Empty(t, f.store.state.Open)
	require.Contains(t, f.store.state.Arms, models.ArmModelMeta)
	assert.Equal(t, int64(1), f.store.state.Arms[models.ArmModelMeta].Pulls)
}
