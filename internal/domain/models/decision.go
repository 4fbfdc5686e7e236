package models

import "time"

// VetoReason identifies which gate or guard zeroed a decision. Reasons
// accumulate in order so a HOLD bar is fully explainable downstream.
type VetoReason string

const (
	VetoThreshold       VetoReason = "threshold"
	VetoConsensus       VetoReason = "consensus"
	VetoOverlayConflict VetoReason = "overlay_conflict"
	VetoBand            VetoReason = "band"
	VetoSpreadGuard     VetoReason = "spread_guard"
	VetoVolGuard        VetoReason = "vol_guard"
	VetoStaleData       VetoReason = "stale_data"
	VetoDailyBudget     VetoReason = "daily_budget"
	VetoCooldown        VetoReason = "cooldown"
	VetoPositionLimit   VetoReason = "position_limit"
	VetoNetEdge         VetoReason = "net_edge"
	VetoCycleTimeout    VetoReason = "cycle_timeout"
	VetoExecRejected    VetoReason = "execution_rejected"
)

// ProvisionalDecision is the gate output before the risk chain and cost
// model run. Vetoes accumulate; a non-empty list forces a flat decision.
type ProvisionalDecision struct {
	Direction   int
	Alpha       float64
	PredCalBps  float64
	Raw         float64
	VetoReasons []VetoReason
}

// Veto records a reason and flattens the decision. It never short-circuits:
// callers keep evaluating so every failed condition is reported.
func (p *ProvisionalDecision) Veto(r VetoReason) {
	p.VetoReasons = append(p.VetoReasons, r)
	p.Direction = 0
	p.Alpha = 0
}

// Vetoed reports whether any stage rejected the bar.
func (p *ProvisionalDecision) Vetoed() bool { return len(p.VetoReasons) > 0 }

// Decision is the final output of one engine cycle. Exactly one exists per
// bar per timeframe instance, and it is immutable once emitted.
type Decision struct {
	EventID     string       `json:"event_id"`
	Timestamp   time.Time    `json:"ts"`
	Symbol      string       `json:"symbol"`
	Timeframe   string       `json:"timeframe"`
	BarIndex    int64        `json:"bar_index"`
	Direction   int          `json:"direction"`
	Alpha       float64      `json:"alpha"`
	ChosenArm   string       `json:"chosen_arm"`
	ChosenRaw   float64      `json:"chosen_raw"`
	PredCalBps  float64      `json:"pred_cal_bps"`
	VetoReasons []VetoReason `json:"veto_reasons"`
}

// Actionable reports whether the decision authorizes an order.
func (d *Decision) Actionable() bool {
	return len(d.VetoReasons) == 0 && d.Direction != 0 && d.Alpha > 0
}

// OrderRequest is the order intent handed to the execution adapter.
type OrderRequest struct {
	EventID   string  `json:"event_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // "BUY" | "SELL"
	Qty       float64 `json:"qty"`
	OrderType string  `json:"order_type"`
}

// Order statuses reported by execution adapters.
const (
	OrderFilled   = "filled"
	OrderRejected = "rejected"
)

// OrderResult is the execution adapter's response. Any status other than
// filled means no position change.
type OrderResult struct {
	Status    string  `json:"status"`
	FillPrice float64 `json:"fill_price,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

// Filled reports whether the order resulted in a position change.
func (r OrderResult) Filled() bool { return r.Status == OrderFilled }

// Side returns the order side string for a direction.
func Side(direction int) string {
	if direction < 0 {
		return "SELL"
	}
	return "BUY"
}
