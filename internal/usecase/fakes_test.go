package usecase

import (
	"context"
	"sync"
	"time"

	"BarPilot/internal/domain/models"
)

// fakeMetrics counts recorder calls by key.
type fakeMetrics struct {
	mu        sync.Mutex
	decisions int
	vetoes    map[string]int
	rewards   map[string][]float64
	errors    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		vetoes:  map[string]int{},
		rewards: map[string][]float64{},
		errors:  map[string]int{},
	}
}

func (m *fakeMetrics) RecordDecision(string, int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions++
}

func (m *fakeMetrics) RecordVeto(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vetoes[reason]++
}

func (m *fakeMetrics) RecordReward(arm string, reward float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards[arm] = append(m.rewards[arm], reward)
}

func (m *fakeMetrics) RecordArmPosterior(string, int64, float64, float64) {}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *fakeMetrics) RecordLatency(string, float64) {}

// fakeAlerts records every alert.
type fakeAlerts struct {
	mu    sync.Mutex
	kinds []string
}

func (a *fakeAlerts) Alert(_ context.Context, kind, _ string, _ map[string]interface{}) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.kinds = append(a.kinds, kind)
	return nil
}

func (a *fakeAlerts) has(kind string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, k := range a.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// fakeMarket serves a fixed state or error.
type fakeMarket struct {
	state *models.MarketState
	err   error
}

func (f *fakeMarket) State(context.Context, string) (*models.MarketState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

// fakeExecutor returns a scripted result.
type fakeExecutor struct {
	result models.OrderResult
	err    error
	reqs   []models.OrderRequest
}

func (f *fakeExecutor) Submit(_ context.Context, req models.OrderRequest) (models.OrderResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return models.OrderResult{}, f.err
	}
	return f.result, nil
}

// fakeSink collects emitted decisions.
type fakeSink struct {
	mu        sync.Mutex
	decisions []*models.Decision
}

func (s *fakeSink) Emit(_ context.Context, d *models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func (s *fakeSink) last() *models.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.decisions) == 0 {
		return nil
	}
	return s.decisions[len(s.decisions)-1]
}

// memRewardStore is an in-memory RewardStore.
type memRewardStore struct {
	state *models.BanditState
}

func (s *memRewardStore) Load(context.Context) (*models.BanditState, error) {
	return s.state, nil
}

func (s *memRewardStore) Save(_ context.Context, st *models.BanditState) error {
	s.state = st
	return nil
}

// memBudgetStore is an in-memory BudgetStore.
type memBudgetStore struct {
	budget *models.RiskBudget
}

func (s *memBudgetStore) Load(context.Context) (*models.RiskBudget, error) {
	return s.budget, nil
}

func (s *memBudgetStore) Save(_ context.Context, b *models.RiskBudget) error {
	cp := *b
	s.budget = &cp
	return nil
}

func healthyMarketState() *models.MarketState {
	return &models.MarketState{
		Symbol:         "BTCUSDT",
		MidPrice:       65_000,
		SpreadBps:      5,
		RealizedVol:    0.02,
		LiquidityScore: 0.8,
		ADVUSD:         2e9,
		DataAge:        time.Second,
		FundingAge:     time.Minute,
	}
}
