package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	decisions   *prometheus.CounterVec
	vetoes      *prometheus.CounterVec
	rewards     *prometheus.HistogramVec
	armPulls    *prometheus.GaugeVec
	armMean     *prometheus.GaugeVec
	armVariance *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpilot_decisions_total",
				Help: "Decisions emitted, by chosen arm, direction and veto outcome",
			},
			[]string{"arm", "direction", "vetoed"},
		),
		vetoes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpilot_vetoes_total",
				Help: "Veto reasons attached to decisions",
			},
			[]string{"reason"},
		),
		rewards: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barpilot_reward",
				Help:    "Realized rewards applied to arm posteriors",
				Buckets: prometheus.LinearBuckets(-50, 10, 11),
			},
			[]string{"arm"},
		),
		armPulls: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "barpilot_arm_pulls",
				Help: "Pull count per arm",
			},
			[]string{"arm"},
		),
		armMean: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "barpilot_arm_mean_reward",
				Help: "Posterior mean reward per arm",
			},
			[]string{"arm"},
		),
		armVariance: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "barpilot_arm_reward_variance",
				Help: "Posterior reward variance per arm",
			},
			[]string{"arm"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "barpilot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "barpilot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordDecision(arm string, direction int, vetoed bool) {
	r.decisions.WithLabelValues(arm, strconv.Itoa(direction), strconv.FormatBool(vetoed)).Inc()
}

func (r *Recorder) RecordVeto(reason string) {
	r.vetoes.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordReward(arm string, reward float64) {
	r.rewards.WithLabelValues(arm).Observe(reward)
}

func (r *Recorder) RecordArmPosterior(arm string, pulls int64, mean, variance float64) {
	r.armPulls.WithLabelValues(arm).Set(float64(pulls))
	r.armMean.WithLabelValues(arm).Set(mean)
	r.armVariance.WithLabelValues(arm).Set(variance)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
