package gate

import (
	"math"

	"BarPilot/internal/domain/models"
)

// Config is the gate's threshold and policy set.
type Config struct {
	SMin     float64 // base threshold for cohort arms
	MMin     float64 // base threshold for model arms (magnitude floor)
	ConfMin  float64
	AlphaMin float64
	BandBps  float64

	// RequireConsensus demands model and cohort-mood directions agree.
	// Policy switch, deliberately configurable in both directions.
	RequireConsensus bool

	// Overlay conflict: above the veto band the bar is vetoed, below it
	// alpha is dampened by the multiplier. One deterministic rule for all
	// timeframe instances.
	OverlayVetoBand     float64
	OverlayConflictMult float64

	// Calibration line: pred_cal_bps = CalibA + CalibB*raw.
	CalibA float64
	CalibB float64
}

// Gate converts the chosen arm's candidate into a provisional decision.
// State-free per call; every failing condition appends its veto so a HOLD
// bar reports the complete set of reasons, not just the first.
type Gate struct {
	cfg Config
}

func New(cfg Config) *Gate {
	return &Gate{cfg: cfg}
}

// Apply runs the fixed gate order: thresholds, consensus, overlay
// alignment, calibration band.
func (g *Gate) Apply(armID string, cand models.CandidateSignal, snap *models.SignalSnapshot) models.ProvisionalDecision {
	p := models.ProvisionalDecision{
		Direction:  cand.Direction,
		Alpha:      cand.Magnitude,
		Raw:        cand.Raw,
		PredCalBps: g.cfg.CalibA + g.cfg.CalibB*cand.Raw,
	}

	// 1. Magnitude/confidence thresholds. Cohort arms clear the social
	// floor, model arms the model floor.
	base := g.cfg.MMin
	if models.ClassOfArm(armID) == models.ArmClassCohort {
		base = g.cfg.SMin
	}
	if cand.Direction == 0 ||
		cand.Confidence < g.cfg.ConfMin ||
		cand.Magnitude < g.cfg.AlphaMin ||
		math.Abs(cand.Raw) < base {
		p.Veto(models.VetoThreshold)
	}

	// 2. Consensus: model direction and cohort mood must agree when the
	// policy is on. Zero mood counts as disagreement only against a
	// non-zero candidate per the strict reading: no confirmation, no trade.
	if g.cfg.RequireConsensus {
		if moodDir := signOf(snap.Mood); moodDir != cand.Direction {
			p.Veto(models.VetoConsensus)
		}
	}

	// 3. Overlay alignment against higher timeframes.
	g.applyOverlays(&p, cand, snap)

	// 4. Calibration band: expected move too small to pay for itself.
	if math.Abs(p.PredCalBps) <= g.cfg.BandBps {
		p.Veto(models.VetoBand)
	}

	return p
}

// applyOverlays checks each higher-timeframe overlay against the candidate
// direction. A conflicting overlay vetoes when the candidate magnitude is
// inside the veto band (the higher timeframe overrules a weak local
// signal); a strong local signal is dampened instead of vetoed.
func (g *Gate) applyOverlays(p *models.ProvisionalDecision, cand models.CandidateSignal, snap *models.SignalSnapshot) {
	if cand.Direction == 0 {
		return
	}
	for _, tf := range higherTimeframes(snap.Timeframe) {
		dir, ok := snap.Overlays[tf]
		if !ok || dir == 0 || dir == cand.Direction {
			continue
		}
		if cand.Magnitude <= g.cfg.OverlayVetoBand {
			p.Veto(models.VetoOverlayConflict)
		} else {
			p.Alpha *= g.cfg.OverlayConflictMult
		}
	}
}

var tfLadder = []string{"1m", "5m", "15m", "1h", "4h"}

// higherTimeframes returns the overlay timeframes above tf in the ladder.
func higherTimeframes(tf string) []string {
	for i, t := range tfLadder {
		if t == tf {
			return tfLadder[i+1:]
		}
	}
	return nil
}

func signOf(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
