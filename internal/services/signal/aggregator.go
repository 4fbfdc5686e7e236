package signal

import (
	"math"
	"sort"

	"BarPilot/internal/domain/models"
)

// Config holds the aggregation parameters. Kept as plain values so the
// aggregator stays a pure function of (snapshot, config).
type Config struct {
	Arms []string
	// SMin is the minimum absolute cohort flow (social-signal floor) before
	// a cohort arm emits a non-flat candidate.
	SMin float64
}

// Aggregator normalizes per-timeframe model probabilities and cohort flow
// into one candidate signal per configured arm. No mutable state, no I/O;
// identical snapshots always produce identical output.
type Aggregator struct {
	cfg Config
}

func New(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate returns a candidate for every configured arm. Arms whose input
// is missing or non-finite produce a flat candidate rather than being
// dropped, so the bandit always sees the full arm set.
func (a *Aggregator) Aggregate(snap *models.SignalSnapshot) map[string]models.CandidateSignal {
	out := make(map[string]models.CandidateSignal, len(a.cfg.Arms))
	for _, id := range a.cfg.Arms {
		switch id {
		case models.ArmPros:
			out[id] = cohortCandidate(snap.STop, a.cfg.SMin)
		case models.ArmAmateurs:
			out[id] = cohortCandidate(snap.SBot, a.cfg.SMin)
		case models.ArmModelMeta:
			if p, ok := snap.OwnProbs(); ok {
				out[id] = modelCandidate(p)
			} else {
				out[id] = models.CandidateSignal{}
			}
		case models.ArmModelBMA:
			out[id] = blendedCandidate(snap.Probs)
		default:
			out[id] = models.CandidateSignal{}
		}
	}
	return out
}

// modelCandidate maps a probability triple to a candidate: direction from
// the sign of p_up - p_down, confidence from the larger side, magnitude
// from the gap.
func modelCandidate(p models.ProbTriple) models.CandidateSignal {
	if !finite(p.PUp) || !finite(p.PDown) {
		return models.CandidateSignal{}
	}
	raw := p.PUp - p.PDown
	return models.CandidateSignal{
		Direction:  sign(raw),
		Magnitude:  math.Abs(raw),
		Confidence: math.Max(p.PUp, p.PDown),
		Raw:        raw,
	}
}

// blendedCandidate averages the available timeframe triples weighted by
// each triple's own confidence, a cheap Bayesian-model-averaging stand-in.
func blendedCandidate(probs map[string]models.ProbTriple) models.CandidateSignal {
	if len(probs) == 0 {
		return models.CandidateSignal{}
	}
	// Deterministic iteration: map order must not leak into output when
	// weights collide with float rounding.
	tfs := make([]string, 0, len(probs))
	for tf := range probs {
		tfs = append(tfs, tf)
	}
	sort.Strings(tfs)

	var wSum, rawSum, confSum float64
	for _, tf := range tfs {
		p := probs[tf]
		if !finite(p.PUp) || !finite(p.PDown) {
			continue
		}
		w := math.Max(p.PUp, p.PDown)
		wSum += w
		rawSum += w * (p.PUp - p.PDown)
		confSum += w * w
	}
	if wSum == 0 {
		return models.CandidateSignal{}
	}
	raw := rawSum / wSum
	return models.CandidateSignal{
		Direction:  sign(raw),
		Magnitude:  math.Abs(raw),
		Confidence: confSum / wSum,
		Raw:        raw,
	}
}

// cohortCandidate maps a flow scalar to a candidate. Flows below the
// social-signal floor are flat; above it, magnitude scales with how far
// the flow clears the floor, saturating at 1.
func cohortCandidate(flow, sMin float64) models.CandidateSignal {
	if !finite(flow) || math.Abs(flow) < sMin {
		return models.CandidateSignal{Raw: 0}
	}
	mag := math.Min(math.Abs(flow), 1)
	return models.CandidateSignal{
		Direction:  sign(flow),
		Magnitude:  mag,
		Confidence: mag,
		Raw:        flow,
	}
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
