package risk

import (
	"time"

	"BarPilot/internal/domain/models"
)

// Config bounds for the guard chain.
type Config struct {
	SpreadCapBps   float64
	VolMin         float64
	VolMax         float64
	LiquidityMin   float64
	MaxDataAge     time.Duration
	MaxFundingAge  time.Duration
	MaxPositionUSD float64
	EquityUSD      float64
}

// Chain is the ordered risk veto chain: spread, vol/liquidity, staleness,
// daily budget, cooldown, position limit. It short-circuits on the first
// veto (unlike the gate, which accumulates) because later guards depend on
// a live decision. Guards never mutate bandit state.
type Chain struct {
	cfg Config
}

func New(cfg Config) *Chain {
	return &Chain{cfg: cfg}
}

// Check runs the chain in order against a provisional decision. A decision
// that arrives already flat passes through untouched: the gate's vetoes
// stand and there is nothing left to guard.
func (c *Chain) Check(p *models.ProvisionalDecision, ms *models.MarketState, budget *models.RiskBudget, bar int64) {
	if p.Vetoed() || p.Direction == 0 {
		return
	}

	if ms.SpreadBps > c.cfg.SpreadCapBps {
		p.Veto(models.VetoSpreadGuard)
		return
	}

	if ms.RealizedVol < c.cfg.VolMin || ms.RealizedVol > c.cfg.VolMax ||
		ms.LiquidityScore < c.cfg.LiquidityMin {
		p.Veto(models.VetoVolGuard)
		return
	}

	if err := c.Staleness(ms); err != nil {
		p.Veto(models.VetoStaleData)
		return
	}

	if budget.Exhausted() {
		p.Veto(models.VetoDailyBudget)
		return
	}

	if budget.InCooldown(bar) {
		p.Veto(models.VetoCooldown)
		return
	}

	c.clampPosition(p, budget)
}

// Staleness returns a DataStaleError when market or funding data is older
// than the freshness threshold. Exposed separately so the engine can alert
// on it rather than treating it as a silent veto.
func (c *Chain) Staleness(ms *models.MarketState) error {
	if ms.DataAge > c.cfg.MaxDataAge {
		return &models.DataStaleError{Kind: "market", Age: ms.DataAge, Threshold: c.cfg.MaxDataAge}
	}
	if ms.FundingAge > c.cfg.MaxFundingAge {
		return &models.DataStaleError{Kind: "funding", Age: ms.FundingAge, Threshold: c.cfg.MaxFundingAge}
	}
	return nil
}

// clampPosition shrinks alpha so the resulting notional stays inside the
// max position. If the book is already at the cap the bar is vetoed.
func (c *Chain) clampPosition(p *models.ProvisionalDecision, budget *models.RiskBudget) {
	if c.cfg.MaxPositionUSD <= 0 || c.cfg.EquityUSD <= 0 {
		return
	}
	headroom := c.cfg.MaxPositionUSD - budget.PositionNotional
	if headroom <= 0 {
		p.Veto(models.VetoPositionLimit)
		return
	}
	proposed := p.Alpha * c.cfg.EquityUSD
	if proposed > headroom {
		p.Alpha = headroom / c.cfg.EquityUSD
	}
}
