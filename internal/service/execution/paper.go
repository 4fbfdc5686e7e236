package execution

import (
	"context"
	"fmt"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
)

// PaperExecutor simulates fills against the live market-state view: orders
// fill at mid adjusted by half the quoted spread in the order's direction.
// It stands in for the real exchange adapter behind the same interface.
type PaperExecutor struct {
	market drepo.MarketData
}

func NewPaperExecutor(market drepo.MarketData) *PaperExecutor {
	return &PaperExecutor{market: market}
}

func (e *PaperExecutor) Submit(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if req.Qty <= 0 {
		return models.OrderResult{Status: models.OrderRejected, Reason: "non-positive qty"}, nil
	}
	ms, err := e.market.State(ctx, req.Symbol)
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("paper fill price: %w", err)
	}
	if ms.MidPrice <= 0 {
		return models.OrderResult{Status: models.OrderRejected, Reason: "no mid price"}, nil
	}

	half := ms.MidPrice * ms.SpreadBps / 2e4
	price := ms.MidPrice + half
	if req.Side == "SELL" {
		price = ms.MidPrice - half
	}
	return models.OrderResult{Status: models.OrderFilled, FillPrice: price}, nil
}

var _ drepo.Executor = (*PaperExecutor)(nil)
