package models

import "time"

// ProbTriple is one model's per-bar probability vector for a timeframe.
type ProbTriple struct {
	PDown    float64 `json:"p_down"`
	PNeutral float64 `json:"p_neutral"`
	PUp      float64 `json:"p_up"`
}

// SignalSnapshot is the per-bar input produced by the upstream feature
// pipeline. It is immutable: the engine only reads it.
type SignalSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	BarIndex  int64     `json:"bar_index"`
	Timestamp time.Time `json:"ts"`

	// Per-timeframe model probabilities, keyed by timeframe ("5m", "15m", "1h").
	Probs map[string]ProbTriple `json:"probs"`

	// Cohort flow signals and aggregate mood scalar.
	STop float64 `json:"s_top"`
	SBot float64 `json:"s_bot"`
	Mood float64 `json:"mood"`

	// Higher-timeframe overlay directions, -1/0/+1 keyed by timeframe.
	Overlays map[string]int `json:"overlays"`

	Close      float64       `json:"close"`
	DataAge    time.Duration `json:"data_age"`
	FundingAge time.Duration `json:"funding_age"`
}

// OwnProbs returns the probability triple for the snapshot's own timeframe.
func (s *SignalSnapshot) OwnProbs() (ProbTriple, bool) {
	p, ok := s.Probs[s.Timeframe]
	return p, ok
}

// CandidateSignal is one arm's view of the current bar: a direction, a size
// proxy, a confidence, and the raw signal value used for reward scaling.
type CandidateSignal struct {
	Direction  int
	Magnitude  float64
	Confidence float64
	Raw        float64
}

// ArmClass distinguishes model-ensemble arms from cohort-flow arms; the
// gate applies different base thresholds per class.
type ArmClass int

const (
	ArmClassModel ArmClass = iota
	ArmClassCohort
)

func (c ArmClass) String() string {
	if c == ArmClassCohort {
		return "cohort"
	}
	return "model"
}

// Canonical arm identifiers. The configured arm set may be any subset.
const (
	ArmPros      = "pros"
	ArmAmateurs  = "amateurs"
	ArmModelMeta = "model_meta"
	ArmModelBMA  = "model_bma"
)

// ClassOfArm maps an arm id to its class. Unknown ids default to the model
// class so misconfigured arms hit the stricter confidence thresholds.
func ClassOfArm(id string) ArmClass {
	switch id {
	case ArmPros, ArmAmateurs:
		return ArmClassCohort
	default:
		return ArmClassModel
	}
}
