package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/miradorstack/mirador-diagnose/internal/engine"
	"github.com/miradorstack/mirador-diagnose/internal/metrics"
	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/scratchpad"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

const latencyReportEvery = 20

// IncidentService seeds investigation scratchpads and runs the analysis stages.
type IncidentService struct {
	logger    *zap.Logger
	store     scratchpad.Store
	patterns  *engine.PatternStage
	rootCause *engine.RootCauseStage
	latencies *utils.LatencyTracker
	locks     *keyedMutex
	newID     func() string
}

// NewIncidentService constructs the service facade. Nil stages fall back to
// heuristic-only defaults.
func NewIncidentService(logger *zap.Logger, store scratchpad.Store, patterns *engine.PatternStage, rootCause *engine.RootCauseStage) *IncidentService {
	logger = utils.OrNop(logger)
	if store == nil {
		store = scratchpad.NewMemoryStore()
	}
	if patterns == nil {
		patterns = engine.NewPatternStage(logger, nil)
	}
	if rootCause == nil {
		rootCause = engine.NewRootCauseStage(logger, nil, nil, 0)
	}
	return &IncidentService{
		logger:    logger,
		store:     store,
		patterns:  patterns,
		rootCause: rootCause,
		latencies: utils.NewLatencyTracker(1024),
		locks:     newKeyedMutex(),
		newID:     uuid.NewString,
	}
}

// Investigate writes the request into a fresh scratchpad and runs both stages.
// Reusing an investigation id replaces every section from the earlier run.
func (s *IncidentService) Investigate(ctx context.Context, req models.InvestigationRequest) (models.InvestigationResult, error) {
	const op = "IncidentService.Investigate"
	if strings.TrimSpace(req.Problem.Description) == "" && strings.TrimSpace(req.Problem.Title) == "" {
		return models.InvestigationResult{}, utils.NewKindError(utils.KindInvalid, op, "problem title or description is required", nil)
	}

	id := req.InvestigationID
	if id == "" {
		id = s.newID()
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	logger := s.logger.With(zap.String("investigation_id", id))
	logger.Debug("investigation started", zap.Int("sources", len(req.Data.Sources)))

	start := time.Now()
	result, err := s.investigate(ctx, id, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveInvestigation(duration, metrics.OutcomeError)
		logger.Error("investigation failed", zap.Error(err))
		return models.InvestigationResult{}, s.wrap(op, err)
	}

	metrics.ObserveInvestigation(duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if count := s.latencies.Count(); count >= latencyReportEvery && count%latencyReportEvery == 0 {
		logger.Info("investigation latency",
			zap.Duration("p95", s.latencies.Percentile(95)),
			zap.Int("samples", count),
		)
	}
	logger.Debug("investigation finished",
		zap.String("root_cause", result.Diagnosis.RootCause.Type),
		zap.Float64("confidence", result.Diagnosis.RootCause.Confidence),
		zap.Duration("duration", duration),
	)
	return result, nil
}

func (s *IncidentService) investigate(ctx context.Context, id string, req models.InvestigationRequest) (models.InvestigationResult, error) {
	pad := s.store.Pad(id)
	if err := scratchpad.Save(ctx, pad, scratchpad.ProblemDescription, req.Problem); err != nil {
		return models.InvestigationResult{}, err
	}
	if err := scratchpad.Save(ctx, pad, scratchpad.DataCollected, req.Data); err != nil {
		return models.InvestigationResult{}, err
	}
	for _, section := range []scratchpad.Section{scratchpad.PatternAnalysis, scratchpad.CodeInspection, scratchpad.FinalDiagnosis} {
		if err := pad.DeleteSection(ctx, section); err != nil {
			return models.InvestigationResult{}, err
		}
	}
	if req.CodeInspection != nil {
		if err := scratchpad.Save(ctx, pad, scratchpad.CodeInspection, req.CodeInspection); err != nil {
			return models.InvestigationResult{}, err
		}
	}

	patterns, err := s.patterns.Run(ctx, pad)
	if err != nil {
		return models.InvestigationResult{}, err
	}
	diagnosis, err := s.rootCause.Run(ctx, pad)
	if err != nil {
		return models.InvestigationResult{}, err
	}
	return models.InvestigationResult{InvestigationID: id, Patterns: patterns, Diagnosis: diagnosis}, nil
}

// AnalyzePatterns runs only the pattern analysis stage against an existing scratchpad.
func (s *IncidentService) AnalyzePatterns(ctx context.Context, id string) (models.PatternAnalysis, error) {
	const op = "IncidentService.AnalyzePatterns"
	if id == "" {
		return models.PatternAnalysis{}, utils.NewKindError(utils.KindInvalid, op, "investigation id is required", nil)
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	analysis, err := s.patterns.Run(ctx, s.store.Pad(id))
	if err != nil {
		return models.PatternAnalysis{}, s.wrap(op, err)
	}
	return analysis, nil
}

// SynthesizeRootCause runs only the root cause stage against an existing scratchpad.
func (s *IncidentService) SynthesizeRootCause(ctx context.Context, id string) (models.Diagnosis, error) {
	const op = "IncidentService.SynthesizeRootCause"
	if id == "" {
		return models.Diagnosis{}, utils.NewKindError(utils.KindInvalid, op, "investigation id is required", nil)
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	diagnosis, err := s.rootCause.Run(ctx, s.store.Pad(id))
	if err != nil {
		return models.Diagnosis{}, s.wrap(op, err)
	}
	return diagnosis, nil
}

// GetDiagnosis returns the stored FINAL_DIAGNOSIS section.
func (s *IncidentService) GetDiagnosis(ctx context.Context, id string) (models.Diagnosis, error) {
	return readSection[models.Diagnosis](ctx, s.store, "IncidentService.GetDiagnosis", id, scratchpad.FinalDiagnosis)
}

// GetPatternAnalysis returns the stored PATTERN_ANALYSIS section.
func (s *IncidentService) GetPatternAnalysis(ctx context.Context, id string) (models.PatternAnalysis, error) {
	return readSection[models.PatternAnalysis](ctx, s.store, "IncidentService.GetPatternAnalysis", id, scratchpad.PatternAnalysis)
}

// LatencyP95 returns the current p95 investigation latency.
func (s *IncidentService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}

func readSection[T any](ctx context.Context, store scratchpad.Store, op, id string, section scratchpad.Section) (T, error) {
	var zero T
	if id == "" {
		return zero, utils.NewKindError(utils.KindInvalid, op, "investigation id is required", nil)
	}
	value, ok, err := scratchpad.Load[T](ctx, store.Pad(id), section)
	if err != nil {
		return zero, utils.NewAppError(op, "read "+string(section), err)
	}
	if !ok {
		return zero, utils.NewKindError(utils.KindNotFound, op, "investigation "+id+" has no "+string(section), nil)
	}
	return value, nil
}

func (s *IncidentService) wrap(op string, err error) error {
	if errors.Is(err, engine.ErrMissingPrecondition) {
		return utils.NewKindError(utils.KindPrecondition, op, "investigation is missing required input", err)
	}
	return utils.NewAppError(op, "analysis failed", err)
}
