package cost

import (
	"math"

	"BarPilot/internal/domain/models"
)

// Config holds the fee/slippage/impact parameters and the safety buffer
// added on top of modeled costs.
type Config struct {
	FeeBps          float64
	SlippageBps     float64
	ImpactK         float64
	SafetyBufferBps float64
}

// Model estimates round-trip transaction cost and enforces the minimum
// net-edge hurdle. The hurdle is symmetric: BUY and SELL are checked
// against |pred_cal_bps| identically.
type Model struct {
	cfg Config
}

func New(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// EstimateBps returns the total modeled cost in bps for a proposed
// notional. Impact grows with the square root of participation
// (notional/ADV), so it is monotone increasing in notional and decreasing
// in available daily volume.
func (m *Model) EstimateBps(notionalUSD, advUSD float64) float64 {
	impact := 0.0
	if advUSD > 0 && notionalUSD > 0 {
		impact = m.cfg.ImpactK * math.Sqrt(notionalUSD/advUSD) * 1e4
	}
	return m.cfg.FeeBps + m.cfg.SlippageBps + impact
}

// Apply vetoes the decision when the expected move does not clear cost
// plus buffer. Net edge must be strictly positive to trade.
func (m *Model) Apply(p *models.ProvisionalDecision, ms *models.MarketState, notionalUSD float64) {
	if p.Vetoed() || p.Direction == 0 {
		return
	}
	total := m.EstimateBps(notionalUSD, ms.ADVUSD)
	netEdge := math.Abs(p.PredCalBps) - total - m.cfg.SafetyBufferBps
	if netEdge <= 0 {
		p.Veto(models.VetoNetEdge)
	}
}
