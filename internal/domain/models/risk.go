package models

import "time"

// MarketState is the market-quality view used by the risk chain and cost
// model. Produced by the market-data stream, read-only for the engine.
type MarketState struct {
	Symbol         string        `json:"symbol"`
	MidPrice       float64       `json:"mid_price"`
	SpreadBps      float64       `json:"spread_bps"`
	RealizedVol    float64       `json:"realized_vol"`
	LiquidityScore float64       `json:"liquidity_score"`
	ADVUSD         float64       `json:"adv_usd"`
	DataAge        time.Duration `json:"data_age"`
	FundingAge     time.Duration `json:"funding_age"`
}

// RiskBudget tracks per-instance daily loss, cooldown and position caps.
// It is owned exclusively by one timeframe instance and persisted
// atomically; it is never shared between instances.
type RiskBudget struct {
	DailyLossUSD     float64   `json:"daily_loss_usd"`
	DailyCapUSD      float64   `json:"daily_cap_usd"`
	CooldownUntilBar int64     `json:"cooldown_until_bar"`
	PositionQty      float64   `json:"position_qty"`
	PositionNotional float64   `json:"position_notional"`
	ResetAt          time.Time `json:"reset_at"`
}

// Exhausted reports whether new entries are suppressed until the next
// daily reset.
func (b *RiskBudget) Exhausted() bool {
	return b.DailyCapUSD > 0 && b.DailyLossUSD >= b.DailyCapUSD
}

// InCooldown reports whether bar is still inside the post-trade cooldown.
func (b *RiskBudget) InCooldown(bar int64) bool {
	return bar < b.CooldownUntilBar
}

// ResetDaily clears the daily loss counter at the day boundary. Position
// state and cooldown survive the reset.
func (b *RiskBudget) ResetDaily(now time.Time) {
	b.DailyLossUSD = 0
	b.ResetAt = now
}
