package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
	xlogger "BarPilot/pkg/logger"
)

type fakePosterior struct {
	instances []string
	armCounts []int
}

func (f *fakePosterior) Snapshot(_ context.Context, instance string, arms []*models.ArmStats, _ time.Time) error {
	f.instances = append(f.instances, instance)
	f.armCounts = append(f.armCounts, len(arms))
	return nil
}

type loopFixture struct {
	loop      *BarLoop
	engine    *engineFixture
	updater   *updaterFixture
	executor  *fakeExecutor
	sink      *fakeSink
	posterior *fakePosterior
}

func newLoopFixture(t *testing.T) *loopFixture {
	t.Helper()
	ef := newEngineFixture(t, nil)
	uf := newUpdaterFixture(t, nil)

	f := &loopFixture{
		engine:    ef,
		updater:   uf,
		executor:  &fakeExecutor{result: models.OrderResult{Status: models.OrderFilled, FillPrice: 65_001}},
		sink:      &fakeSink{},
		posterior: &fakePosterior{},
	}
	f.loop = NewBarLoop(
		engineConfig(),
		"barpilot.snapshots",
		ef.engine,
		uf.updater,
		uf.budget,
		f.executor,
		[]drepo.DecisionSink{f.sink},
		f.posterior,
		"btcusdt-5m",
		ef.metrics,
		xlogger.Nop(),
	)
	return f
}

func snapshotBytes(t *testing.T, snap *models.SignalSnapshot) []byte {
	t.Helper()
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	return b
}

func TestHandle_ActionableBarExecutesAndEmits(t *testing.T) {
	f := newLoopFixture(t)

	require.NoError(t, f.loop.Handle(context.Background(), snapshotBytes(t, engineSnapshot())))

	// The order went out on the decision's side and size.
	require.Len(t, f.executor.reqs, 1)
	req := f.executor.reqs[0]
	assert.Equal(t, "BUY", req.Side)
	assert.InDelta(t, 0.6*50_000/65_000, req.Qty, 1e-9)

	// The emitted decision is the actionable one.
	d := f.sink.last()
	require.NotNil(t, d)
	assert.True(t, d.Actionable())
	assert.Equal(t, int64(100), d.BarIndex)

	// The fill opened a reward attribution and booked the position.
	assert.Equal(t, 1, f.updater.updater.Pending())
	assert.InDelta(t, 0.6*50_000, f.updater.budget.Budget().PositionNotional, 1e-6)

	// Posterior snapshot published for the instance.
	require.Len(t, f.posterior.instances, 1)
	assert.Equal(t, "btcusdt-5m", f.posterior.instances[0])
}

func TestHandle_SkipsOtherSymbolsAndTimeframes(t *testing.T) {
	f := newLoopFixture(t)

	other := engineSnapshot()
	other.Symbol = "ETHUSDT"
	require.NoError(t, f.loop.Handle(context.Background(), snapshotBytes(t, other)))

	otherTF := engineSnapshot()
	otherTF.Timeframe = "1h"
	require.NoError(t, f.loop.Handle(context.Background(), snapshotBytes(t, otherTF)))

	assert.Empty(t, f.sink.decisions)
	assert.Empty(t, f.executor.reqs)
}

func TestHandle_DropsReplayedBars(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()
	raw := snapshotBytes(t, engineSnapshot())

	require.NoError(t, f.loop.Handle(ctx, raw))
	require.NoError(t, f.loop.Handle(ctx, raw))

	assert.Len(t, f.sink.decisions, 1, "replayed bar must not produce a second decision")
	assert.Equal(t, 1, f.engine.metrics.errors["snapshot_replay"])
}

func TestHandle_DropsOutOfOrderBars(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()

	snap := engineSnapshot()
	snap.BarIndex = 105
	require.NoError(t, f.loop.Handle(ctx, snapshotBytes(t, snap)))

	snap.BarIndex = 104
	require.NoError(t, f.loop.Handle(ctx, snapshotBytes(t, snap)))

	assert.Len(t, f.sink.decisions, 1)
}

func TestHandle_MalformedSnapshotIsAnError(t *testing.T) {
	f := newLoopFixture(t)

	err := f.loop.Handle(context.Background(), []byte("{truncated"))
	assert.Error(t, err)
	assert.Equal(t, 1, f.engine.metrics.errors["snapshot_unmarshal"])
	assert.Empty(t, f.sink.decisions)
}

func TestHandle_ExecRejectionDowngradesToHold(t *testing.T) {
	f := newLoopFixture(t)
	f.executor.result = models.OrderResult{Status: models.OrderRejected, Reason: "price protection"}

	require.NoError(t, f.loop.Handle(context.Background(), snapshotBytes(t, engineSnapshot())))

	d := f.sink.last()
	require.NotNil(t, d)
	assert.False(t, d.Actionable())
	assert.Contains(t, d.VetoReasons, models.VetoExecRejected)
	assert.Equal(t, 0, d.Direction)
	assert.Zero(t, d.Alpha)

	// No fill means no position and no reward attribution.
	assert.Zero(t, f.updater.updater.Pending())
	assert.Zero(t, f.updater.budget.Budget().PositionNotional)
}

func TestHandle_ExecErrorDowngradesToHold(t *testing.T) {
	f := newLoopFixture(t)
	f.executor.err = errors.New("venue unreachable")

	require.NoError(t, f.loop.Handle(context.Background(), snapshotBytes(t, engineSnapshot())))

	d := f.sink.last()
	require.NotNil(t, d)
	assert.Contains(t, d.VetoReasons, models.VetoExecRejected)
	assert.Equal(t, 1, f.engine.metrics.errors["execution_rejected"])
}

func TestHandle_VetoedBarSkipsExecution(t *testing.T) {
	f := newLoopFixture(t)
	f.engine.market.state.SpreadBps = 100

	require.NoError(t, f.loop.Handle(context.Background(), snapshotBytes(t, engineSnapshot())))

	assert.Empty(t, f.executor.reqs)
	d := f.sink.last()
	require.NotNil(t, d)
	assert.Equal(t, []models.VetoReason{models.VetoSpreadGuard}, d.VetoReasons)
}

func TestHandle_SettlesPreviousBarBeforeDeciding(t *testing.T) {
	f := newLoopFixture(t)
	ctx := context.Background()

	require.NoError(t, f.loop.Handle(ctx, snapshotBytes(t, engineSnapshot())))
	require.Equal(t, 1, f.updater.updater.Pending())

	next := engineSnapshot()
	next.BarIndex = 101
	next.Close = 65_130
	require.NoError(t, f.loop.Handle(ctx, snapshotBytes(t, next)))

	// Bar 100's attribution settled against bar 101's close (+20 bps on
	// raw 0.6 gives reward 12), and the close started a cooldown that
	// holds bar 101 itself out of the market.
	require.Len(t, f.updater.metrics.rewards[models.ArmModelMeta], 1)
	assert.InDelta(t, 12.0, f.updater.metrics.rewards[models.ArmModelMeta][0], 1e-9)
	assert.Zero(t, f.updater.updater.Pending())

	d := f.sink.last()
	require.NotNil(t, d)
	assert.Contains(t, d.VetoReasons, models.VetoCooldown)
}

func TestTopic_MatchesConfiguredBus(t *testing.T) {
	f := newLoopFixture(t)
	assert.Equal(t, "barpilot.snapshots", f.loop.Topic())
}
