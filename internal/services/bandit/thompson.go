package bandit

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"

	"BarPilot/internal/domain/models"
)

// Thompson is a Gaussian Thompson-Sampling selector over a fixed arm set.
// Each arm carries a Normal posterior (mean, running variance, pull count);
// selection draws one sample per arm and picks the highest. Select and
// Update run on the bar loop, Stats is also read by the HTTP API, so the
// state is mutex-guarded.
type Thompson struct {
	mu         sync.Mutex
	arms       map[string]*models.ArmStats
	order      []string // lexical, fixes tie-break and sampling order
	priorMu    float64
	priorSigma float64
	src        rand.Source
}

// New builds a selector for the configured arm ids, optionally seeding
// posteriors from recovered state. An empty arm set is a fatal
// misconfiguration.
func New(armIDs []string, priorMu, priorSigma float64, seed int64, recovered map[string]*models.ArmStats) (*Thompson, error) {
	if len(armIDs) == 0 {
		return nil, &models.ConfigInvalid{Field: "arms", Reason: "arm set is empty"}
	}
	if priorSigma <= 0 || math.IsNaN(priorMu) || math.IsInf(priorMu, 0) {
		return nil, &models.ConfigInvalid{Field: "prior", Reason: "prior must be finite with sigma > 0"}
	}

	t := &Thompson{
		arms:       make(map[string]*models.ArmStats, len(armIDs)),
		priorMu:    priorMu,
		priorSigma: priorSigma,
		src:        rand.NewPCG(uint64(seed), uint64(seed)),
	}
	for _, id := range armIDs {
		if _, dup := t.arms[id]; dup {
			return nil, &models.ConfigInvalid{Field: "arms", Reason: fmt.Sprintf("duplicate arm %q", id)}
		}
		st := &models.ArmStats{ID: id}
		if rec, ok := recovered[id]; ok && rec != nil {
			st.Pulls, st.Mean, st.M2 = rec.Pulls, rec.Mean, rec.M2
		}
		t.arms[id] = st
		t.order = append(t.order, id)
	}
	sort.Strings(t.order)
	return t, nil
}

// Select draws one posterior sample per arm and returns the arm with the
// highest draw. Cold arms (no pulls) sample from the configured prior so
// every arm gets explored early. Ties break to the least-pulled arm, then
// lexical id order; with a fixed seed the whole sequence is reproducible.
func (t *Thompson) Select() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.order) == 0 {
		return "", &models.ConfigInvalid{Field: "arms", Reason: "arm set is empty"}
	}

	var best string
	bestSample := math.Inf(-1)
	for _, id := range t.order {
		a := t.arms[id]
		mu, sigma := t.posterior(a)
		n := distuv.Normal{Mu: mu, Sigma: sigma, Src: t.src}
		sample := n.Rand()
		if sample > bestSample || (sample == bestSample && best != "" && t.arms[best].Pulls > a.Pulls) {
			best = id
			bestSample = sample
		}
	}
	return best, nil
}

// posterior returns the sampling distribution for an arm: the prior for
// cold arms, otherwise Normal(mean, sd/sqrt(n)) so under-pulled arms keep
// wider sampling variance.
func (t *Thompson) posterior(a *models.ArmStats) (mu, sigma float64) {
	if a.Pulls == 0 {
		return t.priorMu, t.priorSigma
	}
	sd := math.Sqrt(a.Variance())
	if sd == 0 {
		// Degenerate posterior after identical rewards; keep a sliver of
		// exploration instead of a point mass.
		sd = t.priorSigma / 100
	}
	return a.Mean, sd / math.Sqrt(float64(a.Pulls))
}

// Update folds one realized reward into the arm's posterior via Welford's
// recurrence. NaN/Inf rewards are rejected without touching state.
func (t *Thompson) Update(armID string, reward float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.arms[armID]
	if !ok {
		return fmt.Errorf("bandit: unknown arm %q", armID)
	}
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return &models.NumericAnomaly{Where: "reward:" + armID, Value: reward}
	}
	a.Observe(reward)
	return nil
}

// Stats returns the current posterior state in lexical arm order. The
// returned structs are copies; callers cannot mutate selector state.
func (t *Thompson) Stats() []*models.ArmStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.ArmStats, 0, len(t.order))
	for _, id := range t.order {
		cp := *t.arms[id]
		out = append(out, &cp)
	}
	return out
}
