package extractors

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/miradorstack/mirador-diagnose/internal/models"
)

const (
	// errorRateSpikeThreshold is exclusive: a rate must exceed it to be reported.
	errorRateSpikeThreshold = 0.20
	// errorRateCriticalThreshold is inclusive.
	errorRateCriticalThreshold = 0.50
)

var errorCountPattern = regexp.MustCompile(`(\d+)\s+(?:ERROR|FATAL)`)

// IdentifyLogAnomalies emits an error_rate_spike for each source whose ERROR and
// FATAL counts exceed the spike threshold relative to the source's log count.
func (d *AnomalyDetector) IdentifyLogAnomalies(sources []models.CollectedDataEntry) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0)
	for _, source := range sources {
		if !source.Succeeded() || source.Count <= 0 {
			continue
		}

		errorCount := CountErrors(source.Summary)
		rate := float64(errorCount) / float64(source.Count)
		if rate <= errorRateSpikeThreshold {
			continue
		}

		severity := models.SeverityHigh
		if rate >= errorRateCriticalThreshold {
			severity = models.SeverityCritical
		}

		timestamp, ok := source.TimeRange.Start()
		if !ok {
			timestamp = d.fallbackTimestamp()
		}

		// Summaries can report more errors than sampled logs; the rate stays a ratio.
		errorRate := min(rate, 1.0)
		anomalies = append(anomalies, models.Anomaly{
			Type:      models.AnomalyErrorRateSpike,
			Timestamp: timestamp,
			Severity:  severity,
			Description: fmt.Sprintf("Error rate %.1f%% in %s (%d errors out of %d logs)",
				errorRate*100, source.SourceName, errorCount, source.Count),
			Source:    source.SourceName,
			ErrorRate: &errorRate,
		})
	}
	return anomalies
}

// CountErrors sums every "<n> ERROR" and "<n> FATAL" occurrence in a summary.
func CountErrors(summary string) int {
	total := 0
	for _, match := range errorCountPattern.FindAllStringSubmatch(summary, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		total += n
	}
	return total
}
