package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/miradorstack/mirador-diagnose/internal/extractors"
	"github.com/miradorstack/mirador-diagnose/internal/metrics"
	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/scratchpad"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

const (
	// StagePatternAnalysis labels the pattern analysis stage in logs and metrics.
	StagePatternAnalysis = "pattern_analysis"
	// StageRootCause labels the root cause synthesis stage in logs and metrics.
	StageRootCause = "root_cause"

	// DefaultEvidenceLimit is how many evidence descriptions a diagnosis lists.
	DefaultEvidenceLimit = 5
)

// PatternStage turns collected data into a PatternAnalysis.
type PatternStage struct {
	logger     *zap.Logger
	detector   *extractors.AnomalyDetector
	clusterer  *extractors.ErrorClusterer
	timeline   *TimelineBuilder
	correlator *Correlator
}

// NewPatternStage constructs the pattern analysis stage. now supplies fallback
// timestamps; nil uses the wall clock.
func NewPatternStage(logger *zap.Logger, now func() time.Time) *PatternStage {
	logger = utils.OrNop(logger)
	return &PatternStage{
		logger:     logger,
		detector:   extractors.NewAnomalyDetector(now),
		clusterer:  extractors.NewErrorClusterer(),
		timeline:   NewTimelineBuilder(),
		correlator: NewCorrelator(logger),
	}
}

// Analyze runs detection, clustering, timeline construction and correlation.
func (s *PatternStage) Analyze(problem models.ProblemStatement, data models.DataCollection) models.PatternAnalysis {
	anomalies := s.detector.Detect(data.Sources)
	return models.PatternAnalysis{
		Anomalies:     anomalies,
		ErrorClusters: s.clusterer.Cluster(data.Sources),
		Correlations:  s.correlator.Correlate(problem, anomalies),
		Timeline:      s.timeline.Build(data.Sources, anomalies),
	}
}

// Run reads PROBLEM_DESCRIPTION and DATA_COLLECTED and writes PATTERN_ANALYSIS.
func (s *PatternStage) Run(ctx context.Context, pad scratchpad.Scratchpad) (analysis models.PatternAnalysis, err error) {
	start := time.Now()
	defer func() { observeStage(StagePatternAnalysis, start, err) }()

	problem, err := loadRequired[models.ProblemStatement](ctx, pad, StagePatternAnalysis, scratchpad.ProblemDescription)
	if err != nil {
		return models.PatternAnalysis{}, err
	}
	data, err := loadRequired[models.DataCollection](ctx, pad, StagePatternAnalysis, scratchpad.DataCollected)
	if err != nil {
		return models.PatternAnalysis{}, err
	}

	s.logger.Debug("pattern analysis started", zap.Int("sources", len(data.Sources)))
	analysis = s.Analyze(problem, data)
	if err := scratchpad.Save(ctx, pad, scratchpad.PatternAnalysis, analysis); err != nil {
		return models.PatternAnalysis{}, err
	}
	s.logger.Debug("pattern analysis finished",
		zap.Int("anomalies", len(analysis.Anomalies)),
		zap.Int("error_clusters", len(analysis.ErrorClusters)),
		zap.Int("correlations", len(analysis.Correlations)),
		zap.Int("timeline_events", len(analysis.Timeline)),
	)
	return analysis, nil
}

// RootCauseStage synthesizes evidence into a Diagnosis.
type RootCauseStage struct {
	logger        *zap.Logger
	synthesizer   *EvidenceSynthesizer
	hypotheses    HypothesisGenerator
	recommender   *RecommendationGenerator
	evidenceLimit int
}

// NewRootCauseStage constructs the root cause stage. A nil hypotheses generator
// uses keyword heuristics only; evidenceLimit <= 0 uses DefaultEvidenceLimit.
func NewRootCauseStage(logger *zap.Logger, hypotheses HypothesisGenerator, rules *RuleEngine, evidenceLimit int) *RootCauseStage {
	logger = utils.OrNop(logger)
	if hypotheses == nil {
		hypotheses = NewFallbackHypothesisGenerator(nil, logger)
	}
	if evidenceLimit <= 0 {
		evidenceLimit = DefaultEvidenceLimit
	}
	return &RootCauseStage{
		logger:        logger,
		synthesizer:   NewEvidenceSynthesizer(),
		hypotheses:    hypotheses,
		recommender:   NewRecommendationGenerator(rules),
		evidenceLimit: evidenceLimit,
	}
}

// Diagnose produces the diagnosis along with the intermediate synthesis.
func (s *RootCauseStage) Diagnose(ctx context.Context, in SynthesisInput) (models.Diagnosis, models.Synthesis) {
	synthesis := s.synthesizer.Synthesize(in)

	hypothesis, err := s.hypotheses.Generate(ctx, synthesis.Evidence, synthesis.CausalChain)
	if err != nil {
		s.logger.Warn("hypothesis generation failed, using heuristics", zap.Error(err))
		hypothesis, _ = HeuristicHypothesisGenerator{}.Generate(ctx, synthesis.Evidence, synthesis.CausalChain)
	}

	confidence := CalculateConfidence(synthesis.Evidence, synthesis.DataCompleteness, synthesis.Consistency)
	diagnosis := models.Diagnosis{
		RootCause: models.RootCause{
			Type:        hypothesis.Type,
			Confidence:  confidence,
			Description: hypothesis.Description,
			Location:    hypothesis.Location,
		},
		Evidence:            topDescriptions(synthesis.Evidence, s.evidenceLimit),
		TimelineCorrelation: synthesis.TimelineCorrelation,
		RecommendedActions:  s.recommender.Generate(hypothesis, confidence, synthesis.TimelineCorrelation, synthesis.Evidence),
	}
	return diagnosis, synthesis
}

// Run reads PROBLEM_DESCRIPTION, DATA_COLLECTED, PATTERN_ANALYSIS and the optional
// CODE_INSPECTION, then writes FINAL_DIAGNOSIS.
func (s *RootCauseStage) Run(ctx context.Context, pad scratchpad.Scratchpad) (diagnosis models.Diagnosis, err error) {
	start := time.Now()
	defer func() { observeStage(StageRootCause, start, err) }()

	var in SynthesisInput
	if in.Problem, err = loadRequired[models.ProblemStatement](ctx, pad, StageRootCause, scratchpad.ProblemDescription); err != nil {
		return models.Diagnosis{}, err
	}
	if in.Data, err = loadRequired[models.DataCollection](ctx, pad, StageRootCause, scratchpad.DataCollected); err != nil {
		return models.Diagnosis{}, err
	}
	if in.Patterns, err = loadRequired[models.PatternAnalysis](ctx, pad, StageRootCause, scratchpad.PatternAnalysis); err != nil {
		return models.Diagnosis{}, err
	}
	code, ok, err := scratchpad.Load[models.CodeInspection](ctx, pad, scratchpad.CodeInspection)
	if err != nil {
		return models.Diagnosis{}, err
	}
	if ok {
		in.Code = &code
	}

	diagnosis, synthesis := s.Diagnose(ctx, in)
	if err := scratchpad.Save(ctx, pad, scratchpad.FinalDiagnosis, diagnosis); err != nil {
		return models.Diagnosis{}, err
	}
	metrics.ObserveConfidence(diagnosis.RootCause.Confidence)
	s.logger.Debug("root cause synthesized",
		zap.String("root_cause", diagnosis.RootCause.Type),
		zap.Float64("confidence", diagnosis.RootCause.Confidence),
		zap.Int("evidence", len(synthesis.Evidence)),
		zap.Int("causal_steps", len(synthesis.CausalChain)),
		zap.Bool("code_inspection", in.Code != nil),
	)
	return diagnosis, nil
}

func topDescriptions(evidence []models.EvidenceItem, limit int) []string {
	if len(evidence) < limit {
		limit = len(evidence)
	}
	descriptions := make([]string, 0, limit)
	for _, item := range evidence[:limit] {
		descriptions = append(descriptions, item.Description)
	}
	return descriptions
}

func loadRequired[T any](ctx context.Context, pad scratchpad.Scratchpad, stage string, section scratchpad.Section) (T, error) {
	value, ok, err := scratchpad.Load[T](ctx, pad, section)
	if err != nil {
		return value, fmt.Errorf("%s: %w", stage, err)
	}
	if !ok {
		return value, &PreconditionError{Stage: stage, Section: section}
	}
	return value, nil
}

func observeStage(stage string, start time.Time, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveStage(stage, time.Since(start), outcome)
}
