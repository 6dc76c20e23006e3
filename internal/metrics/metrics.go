package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mirador_diagnose"

const (
	// OutcomeSuccess labels runs that produced their output section.
	OutcomeSuccess = "success"
	// OutcomeError labels runs that failed (missing preconditions or storage issues).
	OutcomeError = "error"
)

const (
	// StrategyLLM labels hypotheses produced by the language model.
	StrategyLLM = "llm"
	// StrategyHeuristic labels hypotheses produced by keyword heuristics.
	StrategyHeuristic = "heuristic"
	// StrategyInsufficient labels the fixed hypothesis returned without evidence.
	StrategyInsufficient = "insufficient_evidence"
)

var (
	investigationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "investigations_total",
			Help:      "Total number of end-to-end investigations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	investigationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "investigation_seconds",
			Help:      "End-to-end investigation latency in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	stageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_total",
			Help:      "Analysis stage runs, partitioned by stage and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_seconds",
			Help:      "Analysis stage latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		},
		[]string{"stage"},
	)

	hypothesisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hypothesis_total",
			Help:      "Root-cause hypotheses generated, partitioned by strategy.",
		},
		[]string{"strategy"},
	)

	confidenceScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "confidence",
			Help:      "Distribution of diagnosis confidence scores.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)
)

// Register attaches mirador-diagnose collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		investigationsTotal,
		investigationDurationSeconds,
		stageTotal,
		stageDurationSeconds,
		hypothesisTotal,
		confidenceScore,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func outcomeLabel(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return OutcomeError
}

func seconds(duration time.Duration) float64 {
	if duration < 0 {
		duration = 0
	}
	return duration.Seconds()
}

// ObserveInvestigation records an investigation duration and outcome label.
func ObserveInvestigation(duration time.Duration, outcome string) {
	investigationsTotal.WithLabelValues(outcomeLabel(outcome)).Inc()
	investigationDurationSeconds.Observe(seconds(duration))
}

// ObserveStage records a single stage run.
func ObserveStage(stage string, duration time.Duration, outcome string) {
	stageTotal.WithLabelValues(stage, outcomeLabel(outcome)).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(seconds(duration))
}

// ObserveHypothesis counts the strategy that produced a hypothesis.
func ObserveHypothesis(strategy string) {
	hypothesisTotal.WithLabelValues(strategy).Inc()
}

// ObserveConfidence records the confidence attached to a diagnosis.
func ObserveConfidence(confidence float64) {
	confidenceScore.Observe(confidence)
}
