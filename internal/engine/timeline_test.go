package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-diagnose/internal/models"
)

func TestTimelineIsChronological(t *testing.T) {
	sources := []models.CollectedDataEntry{
		{SourceName: "b", TimeRange: "2025-03-14T09:05:00Z - 2025-03-14T09:10:00Z"},
		{SourceName: "failed", TimeRange: "2025-03-14T08:00:00Z - 2025-03-14T09:10:00Z", Error: "boom"},
		{SourceName: "no-range"},
	}
	anomalies := []models.Anomaly{
		{Type: models.AnomalyMetricSpike, Timestamp: "2025-03-14T09:07:00Z", Severity: models.SeverityCritical, Description: "cpu"},
		{Type: models.AnomalyErrorRateSpike, Timestamp: "2025-03-14T09:01:00Z", Severity: models.SeverityHigh, Description: "errors"},
		{Type: models.AnomalyMetricDrop, Description: "no timestamp"},
	}

	timeline := NewTimelineBuilder().Build(sources, anomalies)

	require.Len(t, timeline, 3)
	for i := 1; i < len(timeline); i++ {
		assert.LessOrEqual(t, timeline[i-1].Time, timeline[i].Time)
	}
	assert.Equal(t, "error_rate_spike: errors", timeline[0].Event)
	assert.Equal(t, models.TimelineContext, timeline[1].Type)
	assert.Equal(t, models.SeverityCritical, timeline[2].Severity)
}
