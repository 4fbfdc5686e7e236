package risk

import (
	"context"
	"sync"
	"time"

	"BarPilot/internal/domain/models"
	drepo "BarPilot/internal/domain/repository"
)

// BudgetManager owns the instance's risk budget: it applies fills and
// realized PnL, schedules the daily reset, and persists each mutation
// atomically through the store. Safe for concurrent use; the daily
// reset fires from a cron goroutine while the bar loop trades.
type BudgetManager struct {
	mu           sync.Mutex
	budget       *models.RiskBudget
	store        drepo.BudgetStore
	cooldownBars int64
}

// NewBudgetManager recovers the budget from the store, falling back to a
// fresh budget with the configured cap.
func NewBudgetManager(ctx context.Context, store drepo.BudgetStore, capUSD float64, cooldownBars int64) (*BudgetManager, error) {
	b, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = &models.RiskBudget{DailyCapUSD: capUSD, ResetAt: time.Now().UTC()}
	}
	// Config is authoritative for the cap; persisted state only carries
	// the running counters.
	b.DailyCapUSD = capUSD
	return &BudgetManager{budget: b, store: store, cooldownBars: cooldownBars}, nil
}

// Budget returns a copy of the current budget for guard checks and the
// observability API.
func (m *BudgetManager) Budget() *models.RiskBudget {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *m.budget
	return &b
}

// ApplyFill records a new position after an accepted trade and persists.
func (m *BudgetManager) ApplyFill(ctx context.Context, qty, notional float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget.PositionQty += qty
	m.budget.PositionNotional += notional
	return m.store.Save(ctx, m.budget)
}

// ApplyClose books realized PnL, releases the position, and starts the
// cooldown window.
func (m *BudgetManager) ApplyClose(ctx context.Context, bar int64, pnlUSD, notional float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pnlUSD < 0 {
		m.budget.DailyLossUSD += -pnlUSD
	}
	m.budget.PositionQty = 0
	m.budget.PositionNotional -= notional
	if m.budget.PositionNotional < 0 {
		m.budget.PositionNotional = 0
	}
	m.budget.CooldownUntilBar = bar + m.cooldownBars
	return m.store.Save(ctx, m.budget)
}

// ResetDaily clears the daily loss counter at the day boundary and
// persists the reset.
func (m *BudgetManager) ResetDaily(ctx context.Context, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budget.ResetDaily(now)
	return m.store.Save(ctx, m.budget)
}
