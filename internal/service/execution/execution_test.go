package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BarPilot/internal/domain/models"
)

type stubMarket struct {
	state *models.MarketState
	err   error
}

func (s *stubMarket) State(context.Context, string) (*models.MarketState, error) {
	return s.state, s.err
}

type flakyExecutor struct {
	failures int
	calls    int
	result   models.OrderResult
}

func (f *flakyExecutor) Submit(context.Context, models.OrderRequest) (models.OrderResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return models.OrderResult{}, errors.New("venue unreachable")
	}
	return f.result, nil
}

func buyReq() models.OrderRequest {
	return models.OrderRequest{EventID: "evt-1", Symbol: "BTCUSDT", Side: "BUY", Qty: 0.1, OrderType: "market"}
}

func TestPaperExecutor_FillsAtHalfSpread(t *testing.T) {
	market := &stubMarket{state: &models.MarketState{MidPrice: 65_000, SpreadBps: 10}}
	e := NewPaperExecutor(market)

	// Half spread on 65k at 10 bps is 32.5.
	res, err := e.Submit(context.Background(), buyReq())
	require.NoError(t, err)
	assert.True(t, res.Filled())
	assert.InDelta(t, 65_032.5, res.FillPrice, 1e-9)

	sell := buyReq()
	sell.Side = "SELL"
	res, err = e.Submit(context.Background(), sell)
	require.NoError(t, err)
	assert.InDelta(t, 64_967.5, res.FillPrice, 1e-9)
}

func TestPaperExecutor_RejectsBadOrders(t *testing.T) {
	market := &stubMarket{state: &models.MarketState{MidPrice: 65_000}}
	e := NewPaperExecutor(market)

	zero := buyReq()
	zero.Qty = 0
	res, err := e.Submit(context.Background(), zero)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, res.Status)

	market.state.MidPrice = 0
	res, err = e.Submit(context.Background(), buyReq())
	require.NoError(t, err)
	assert.Equal(t, models.OrderRejected, res.Status)
	assert.False(t, res.Filled())
}

func TestPaperExecutor_MarketErrorSurfaces(t *testing.T) {
	e := NewPaperExecutor(&stubMarket{err: errors.New("stream down")})
	_, err := e.Submit(context.Background(), buyReq())
	assert.Error(t, err)
}

func TestRetryExecutor_RetriesTransientErrors(t *testing.T) {
	inner := &flakyExecutor{failures: 2, result: models.OrderResult{Status: models.OrderFilled, FillPrice: 65_000}}
	e := NewRetryExecutor(inner, 3, time.Millisecond, 4*time.Millisecond)

	res, err := e.Submit(context.Background(), buyReq())
	require.NoError(t, err)
	assert.True(t, res.Filled())
	assert.Equal(t, 3, inner.calls)
}

func TestRetryExecutor_ExhaustedAttemptsRejects(t *testing.T) {
	inner := &flakyExecutor{failures: 10}
	e := NewRetryExecutor(inner, 3, time.Millisecond, 4*time.Millisecond)

	_, err := e.Submit(context.Background(), buyReq())
	require.Error(t, err)

	var rejected *models.ExecutionRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "evt-1", rejected.EventID)
	assert.Equal(t, 3, rejected.Attempts)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryExecutor_VenueRejectionIsFinal(t *testing.T) {
	inner := &flakyExecutor{result: models.OrderResult{Status: models.OrderRejected, Reason: "price protection"}}
	e := NewRetryExecutor(inner, 3, time.Millisecond, 4*time.Millisecond)

	res, err := e.Submit(context.Background(), buyReq())
	require.NoError(t, err)
	assert.False(t, res.Filled())
	assert.Equal(t, 1, inner.calls, "an answered rejection must not be retried")
}

func TestRetryExecutor_CancelledContextStopsRetrying(t *testing.T) {
	inner := &flakyExecutor{failures: 10}
	e := NewRetryExecutor(inner, 5, 50*time.Millisecond, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Submit(ctx, buyReq())
	require.Error(t, err)
	var rejected *models.ExecutionRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 1, inner.calls)
}
