package signal

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPilot/internal/domain/models"
)

func allArms() []string {
	return []string{models.ArmPros, models.ArmAmateurs, models.ArmModelMeta, models.ArmModelBMA}
}

func baseSnapshot() *models.SignalSnapshot {
	return &models.SignalSnapshot{
		Symbol:    "BTCUSDT",
		Timeframe: "5m",
		BarIndex:  100,
		Timestamp: time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC),
		Probs: map[string]models.ProbTriple{
			"5m": {PUp: 0.7, PNeutral: 0.2, PDown: 0.1},
		},
		STop:  0.4,
		SBot:  -0.05,
		Close: 65000,
	}
}

func TestAggregate_ModelMetaFromOwnTimeframe(t *testing.T) {
	agg := New(Config{Arms: allArms(), SMin: 0.1})
	out := agg.Aggregate(baseSnapshot())

	meta := out[models.ArmModelMeta]
	assert.Equal(t, 1, meta.Direction)
	assert.InDelta(t, 0.6, meta.Raw, 1e-12)
	assert.InDelta(t, 0.6, meta.Magnitude, 1e-12)
	assert.InDelta(t, 0.7, meta.Confidence, 1e-12)
}

func TestAggregate_ModelMetaMissingOwnTimeframe(t *testing.T) {
	snap := baseSnapshot()
	snap.Probs = map[string]models.ProbTriple{
		"15m": {PUp: 0.8, PDown: 0.1},
	}

	agg := New(Config{Arms: allArms(), SMin: 0.1})
	out := agg.Aggregate(snap)

	assert.Equal(t, models.CandidateSignal{}, out[models.ArmModelMeta])
	// The blended arm still works off the 15m triple.
	assert.Equal(t, 1, out[models.ArmModelBMA].Direction)
}

func TestAggregate_CohortFloor(t *testing.T) {
	tests := []struct {
		name    string
		flow    float64
		wantDir int
	}{
		{"above floor long", 0.4, 1},
		{"above floor short", -0.4, -1},
		{"below floor", 0.05, 0},
		{"exactly at floor", 0.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := baseSnapshot()
			snap.STop = tt.flow

			agg := New(Config{Arms: []string{models.ArmPros}, SMin: 0.1})
			cand := agg.Aggregate(snap)[models.ArmPros]

			assert.Equal(t, tt.wantDir, cand.Direction)
			if tt.wantDir == 0 {
				assert.Zero(t, cand.Magnitude)
				assert.Zero(t, cand.Confidence)
			} else {
				assert.InDelta(t, math.Abs(tt.flow), cand.Magnitude, 1e-12)
			}
		})
	}
}

func TestAggregate_CohortMagnitudeSaturates(t *testing.T) {
	snap := baseSnapshot()
	snap.SBot = -2.5

	agg := New(Config{Arms: []string{models.ArmAmateurs}, SMin: 0.1})
	cand := agg.Aggregate(snap)[models.ArmAmateurs]

	assert.Equal(t, -1, cand.Direction)
	assert.InDelta(t, 1.0, cand.Magnitude, 1e-12)
	assert.InDelta(t, -2.5, cand.Raw, 1e-12, "raw flow is preserved unsaturated")
}

func TestAggregate_BlendedWeightsByConfidence(t *testing.T) {
	snap := baseSnapshot()
	snap.Probs = map[string]models.ProbTriple{
		"5m":  {PUp: 0.8, PDown: 0.1}, // w=0.8, raw=0.7
		"15m": {PUp: 0.2, PDown: 0.6}, // w=0.6, raw=-0.4
	}

	agg := New(Config{Arms: []string{models.ArmModelBMA}, SMin: 0.1})
	cand := agg.Aggregate(snap)[models.ArmModelBMA]

	wantRaw := (0.8*0.7 + 0.6*-0.4) / 1.4
	assert.Equal(t, 1, cand.Direction)
	assert.InDelta(t, wantRaw, cand.Raw, 1e-12)
	assert.InDelta(t, (0.8*0.8+0.6*0.6)/1.4, cand.Confidence, 1e-12)
}

func TestAggregate_NonFiniteInputsGoFlat(t *testing.T) {
	snap := baseSnapshot()
	snap.Probs = map[string]models.ProbTriple{
		"5m": {PUp: math.NaN(), PDown: 0.1},
	}
	snap.STop = math.Inf(1)

	agg := New(Config{Arms: allArms(), SMin: 0.1})
	out := agg.Aggregate(snap)

	assert.Equal(t, models.CandidateSignal{}, out[models.ArmModelMeta])
	assert.Equal(t, models.CandidateSignal{}, out[models.ArmModelBMA])
	assert.Equal(t, 0, out[models.ArmPros].Direction)
}

func TestAggregate_Idempotent(t *testing.T) {
	agg := New(Config{Arms: allArms(), SMin: 0.1})
	snap := baseSnapshot()

	first := agg.Aggregate(snap)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, agg.Aggregate(snap))
	}
}

func TestAggregate_AlwaysEmitsFullArmSet(t *testing.T) {
	agg := New(Config{Arms: allArms(), SMin: 0.1})
	out := agg.Aggregate(&models.SignalSnapshot{Timeframe: "5m"})

	require.Len(t, out, 4)
	for _, id := range allArms() {
		assert.Contains(t, out, id)
	}
}
