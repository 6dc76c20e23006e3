package extractors

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-diagnose/internal/models"
)

const (
	spikeKeyword = "spike detected"
	dropKeyword  = "drop detected"
)

// IdentifyMetricAnomalies emits a critical metric_spike for summaries reporting a
// spike and a high metric_drop for summaries reporting a drop. A single summary
// may yield both.
func (d *AnomalyDetector) IdentifyMetricAnomalies(sources []models.CollectedDataEntry) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)
	for _, source := range sources {
		if !source.Succeeded() {
			continue
		}
		summary := strings.ToLower(source.Summary)
		hasSpike := strings.Contains(summary, spikeKeyword)
		hasDrop := strings.Contains(summary, dropKeyword)
		if !hasSpike && !hasDrop {
			continue
		}

		timestamp, ok := firstTimestamp(source.Summary)
		if !ok {
			timestamp = d.fallbackTimestamp()
		}

		if hasSpike {
			anomalies = append(anomalies, models.Anomaly{
				Type:        models.AnomalyMetricSpike,
				Timestamp:   timestamp,
				Severity:    models.SeverityCritical,
				Description: metricDescription(source, spikeKeyword, "Metric spike detected"),
				Source:      source.SourceName,
			})
		}
		if hasDrop {
			anomalies = append(anomalies, models.Anomaly{
				Type:        models.AnomalyMetricDrop,
				Timestamp:   timestamp,
				Severity:    models.SeverityHigh,
				Description: metricDescription(source, dropKeyword, "Metric drop detected"),
				Source:      source.SourceName,
			})
		}
	}
	return anomalies
}

func metricDescription(source models.CollectedDataEntry, keyword, fallback string) string {
	if sentence, ok := sentenceContaining(source.Summary, keyword); ok {
		return sentence
	}
	return fmt.Sprintf("%s in %s", fallback, source.SourceName)
}
