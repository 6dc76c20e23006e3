package engine

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/miradorstack/mirador-diagnose/internal/llm"
	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/scratchpad"
)

func TestPatternStageRun(t *testing.T) {
	pad := seedPad(t, false)
	stage := NewPatternStage(zaptest.NewLogger(t), fixedClock)

	analysis, err := stage.Run(context.Background(), pad)
	require.NoError(t, err)

	require.Len(t, analysis.Anomalies, 2)
	assert.Equal(t, models.AnomalyMetricSpike, analysis.Anomalies[0].Type)
	assert.Equal(t, models.AnomalyErrorRateSpike, analysis.Anomalies[1].Type)

	require.Len(t, analysis.ErrorClusters, 1)
	assert.Equal(t, "NullPointerException at handler.go:N", analysis.ErrorClusters[0].Pattern)
	require.NotNil(t, analysis.ErrorClusters[0].StackTrace)
	assert.Equal(t, "handler.go:42", *analysis.ErrorClusters[0].StackTrace)

	require.Len(t, analysis.Correlations, 2)
	assert.Equal(t, models.CorrelationTemporalAlignment, analysis.Correlations[0].Type)
	assert.Equal(t, models.CorrelationDeployment, analysis.Correlations[1].Type)

	assert.Len(t, analysis.Timeline, 4)

	stored, ok, err := scratchpad.Load[models.PatternAnalysis](context.Background(), pad, scratchpad.PatternAnalysis)
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(analysis, stored); diff != "" {
		t.Fatalf("stored analysis mismatch (-want +got):\n%s", diff)
	}
}

func TestStagesRequireSections(t *testing.T) {
	ctx := context.Background()
	empty := scratchpad.NewMemoryStore().Pad("empty")

	_, err := NewPatternStage(nil, nil).Run(ctx, empty)
	require.ErrorIs(t, err, ErrMissingPrecondition)
	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)
	assert.Equal(t, scratchpad.ProblemDescription, precondition.Section)

	pad := seedPad(t, false)
	_, err = NewRootCauseStage(nil, nil, nil, 0).Run(ctx, pad)
	require.ErrorAs(t, err, &precondition)
	assert.Equal(t, StageRootCause, precondition.Stage)
	assert.Equal(t, scratchpad.PatternAnalysis, precondition.Section)

	_, ok, err := pad.ReadSection(ctx, scratchpad.FinalDiagnosis)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRootCauseStageWithLLM(t *testing.T) {
	ctx := context.Background()
	pad := seedPad(t, true)
	_, err := NewPatternStage(nil, fixedClock).Run(ctx, pad)
	require.NoError(t, err)

	completer := llm.CompleterFunc(func(context.Context, string, string, float64, int) (string, error) {
		return "A nil pointer dereference in ProcessOrder (internal/checkout/handler.go:42) introduced by the deploy.", nil
	})
	hypotheses := NewFallbackHypothesisGenerator(NewLLMHypothesisGenerator(completer), nil)
	stage := NewRootCauseStage(zaptest.NewLogger(t), hypotheses, nil, 0)

	diagnosis, err := stage.Run(ctx, pad)
	require.NoError(t, err)

	assert.Equal(t, "nil_pointer_dereference", diagnosis.RootCause.Type)
	assert.Equal(t, "internal/checkout/handler.go:42", diagnosis.RootCause.Location)
	assert.InDelta(t, 0.92, diagnosis.RootCause.Confidence, 1e-9)
	assert.Len(t, diagnosis.Evidence, 5)
	assert.Equal(t, "Latency spike detected at 2025-03-14T09:00:00Z", diagnosis.Evidence[0])

	assert.True(t, diagnosis.TimelineCorrelation.DeploymentMentioned)
	assert.Equal(t, "2025-03-14T09:00:00", diagnosis.TimelineCorrelation.FirstErrorTime)
	assert.Contains(t, diagnosis.TimelineCorrelation.Alignment, "within 2.0 minutes")

	require.Len(t, diagnosis.RecommendedActions, 5)
	assert.Equal(t, models.PriorityImmediate, diagnosis.RecommendedActions[0].Priority)
	assert.Equal(t, "Add nil-safety checks", diagnosis.RecommendedActions[1].Action)
	assert.Equal(t, "internal/checkout/handler.go:42", diagnosis.RecommendedActions[1].Location)

	stored, ok, err := scratchpad.Load[models.Diagnosis](ctx, pad, scratchpad.FinalDiagnosis)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, diagnosis.RootCause, stored.RootCause)
}

func TestRootCauseStageHeuristicWithoutCode(t *testing.T) {
	ctx := context.Background()
	pad := seedPad(t, false)
	_, err := NewPatternStage(nil, fixedClock).Run(ctx, pad)
	require.NoError(t, err)

	diagnosis, err := NewRootCauseStage(nil, nil, nil, 2).Run(ctx, pad)
	require.NoError(t, err)

	assert.Equal(t, "unknown", diagnosis.RootCause.Type)
	assert.Equal(t, "Latency spike detected at 2025-03-14T09:00:00Z", diagnosis.RootCause.Description)
	assert.Len(t, diagnosis.Evidence, 2)
	assert.GreaterOrEqual(t, diagnosis.RootCause.Confidence, 0.0)
	assert.LessOrEqual(t, diagnosis.RootCause.Confidence, 1.0)
	for i := 1; i < len(diagnosis.RecommendedActions); i++ {
		assert.LessOrEqual(t, diagnosis.RecommendedActions[i-1].Priority.Rank(), diagnosis.RecommendedActions[i].Priority.Rank())
	}
}

func TestRootCauseStageWithoutEvidence(t *testing.T) {
	var sources []models.CollectedDataEntry
	for _, name := range []string{"prometheus", "loki", "tempo"} {
		sources = append(sources, models.CollectedDataEntry{
			SourceName: name,
			Summary:    "all nominal",
			Count:      10,
			TimeRange:  "2025-03-14T09:00:00Z - 2025-03-14T09:20:00Z",
		})
	}
	in := SynthesisInput{
		Problem: models.ProblemStatement{Description: "errors after deploy"},
		Data:    models.DataCollection{Sources: sources},
	}
	in.Patterns = NewPatternStage(nil, fixedClock).Analyze(in.Problem, in.Data)
	require.Len(t, in.Patterns.Timeline, 3)

	diagnosis, synthesis := NewRootCauseStage(zaptest.NewLogger(t), nil, nil, 0).Diagnose(context.Background(), in)

	assert.Empty(t, synthesis.Evidence)
	assert.Zero(t, synthesis.Consistency)
	assert.Less(t, diagnosis.RootCause.Confidence, 0.5)
	assert.Equal(t, "unknown", diagnosis.RootCause.Type)
	assert.Empty(t, diagnosis.RecommendedActions)
}
