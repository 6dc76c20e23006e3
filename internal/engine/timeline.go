package engine

import (
	"fmt"
	"sort"

	"github.com/miradorstack/mirador-diagnose/internal/models"
)

// TimelineBuilder merges collection windows and anomalies into one ordered sequence.
type TimelineBuilder struct{}

// NewTimelineBuilder constructs a TimelineBuilder.
func NewTimelineBuilder() *TimelineBuilder {
	return &TimelineBuilder{}
}

// Build returns context events for every successful source with a collection
// window followed by anomaly events, sorted ascending by time. Timestamps are
// ISO-8601 so lexical order is chronological; ties keep insertion order.
func (b *TimelineBuilder) Build(sources []models.CollectedDataEntry, anomalies []models.Anomaly) []models.TimelineEvent {
	events := make([]models.TimelineEvent, 0, len(sources)+len(anomalies))
	for _, source := range sources {
		if !source.Succeeded() {
			continue
		}
		start, ok := source.TimeRange.Start()
		if !ok {
			continue
		}
		events = append(events, models.TimelineEvent{
			Time:  start,
			Event: fmt.Sprintf("Data collection window opened for %s", source.SourceName),
			Type:  models.TimelineContext,
		})
	}

	for _, anomaly := range anomalies {
		if anomaly.Timestamp == "" {
			continue
		}
		events = append(events, models.TimelineEvent{
			Time:     anomaly.Timestamp,
			Event:    fmt.Sprintf("%s: %s", anomaly.Type, anomaly.Description),
			Type:     models.TimelineAnomaly,
			Severity: anomaly.Severity,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time < events[j].Time
	})
	return events
}
