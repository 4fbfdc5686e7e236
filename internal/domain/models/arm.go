package models

import "time"

// ArmStats is the Gaussian posterior state of one bandit arm: pull count,
// running mean and Welford M2 accumulator. Mutated only by the reward
// updater, exactly once per closed bar for the arm that was chosen.
type ArmStats struct {
	ID    string  `json:"id"`
	Pulls int64   `json:"pulls"`
	Mean  float64 `json:"mean"`
	M2    float64 `json:"m2"`
}

// Variance returns the unbiased running variance, M2/max(n-1, 1).
func (a *ArmStats) Variance() float64 {
	if a.Pulls < 2 {
		return a.M2
	}
	return a.M2 / float64(a.Pulls-1)
}

// Observe folds one reward into the posterior using Welford's online
// recurrence. O(1) memory, numerically stable.
func (a *ArmStats) Observe(r float64) {
	a.Pulls++
	delta := r - a.Mean
	a.Mean += delta / float64(a.Pulls)
	delta2 := r - a.Mean
	a.M2 += delta * delta2
}

// OpenReward is one pending reward attribution: a position-affecting
// decision at BarIndex waiting for the next bar's close.
type OpenReward struct {
	EventID    string    `json:"event_id"`
	Arm        string    `json:"arm"`
	BarIndex   int64     `json:"bar_index"`
	Direction  int       `json:"direction"`
	Raw        float64   `json:"raw"`
	EntryClose float64   `json:"entry_close"`
	Notional   float64   `json:"notional_usd"`
	OpenedAt   time.Time `json:"opened_at"`
}

// BanditState is the persisted crash-recovery record: every arm's posterior
// plus pending reward attributions.
type BanditState struct {
	Arms    map[string]*ArmStats `json:"arms"`
	Open    []OpenReward         `json:"open"`
	SavedAt time.Time            `json:"saved_at"`
}
