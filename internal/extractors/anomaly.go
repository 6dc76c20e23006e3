package extractors

import (
	"regexp"
	"strings"
	"time"

	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

var isoTimestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)

// AnomalyDetector scans collector summaries for metric and log anomalies.
type AnomalyDetector struct {
	now func() time.Time
}

// NewAnomalyDetector constructs a detector. now supplies the fallback timestamp
// for anomalies whose summary carries none; nil uses the wall clock.
func NewAnomalyDetector(now func() time.Time) *AnomalyDetector {
	if now == nil {
		now = time.Now
	}
	return &AnomalyDetector{now: now}
}

// Detect returns metric anomalies followed by log anomalies.
func (d *AnomalyDetector) Detect(sources []models.CollectedDataEntry) []models.Anomaly {
	anomalies := d.IdentifyMetricAnomalies(sources)
	return append(anomalies, d.IdentifyLogAnomalies(sources)...)
}

func (d *AnomalyDetector) fallbackTimestamp() string {
	return utils.FormatISO8601(d.now())
}

// firstTimestamp returns the first ISO-8601 timestamp embedded in text.
func firstTimestamp(text string) (string, bool) {
	match := isoTimestampPattern.FindString(text)
	return match, match != ""
}

// sentenceContaining returns the ';'-separated clause of summary holding keyword.
func sentenceContaining(summary, keyword string) (string, bool) {
	for _, sentence := range strings.Split(summary, ";") {
		if strings.Contains(strings.ToLower(sentence), keyword) {
			return strings.TrimSpace(sentence), true
		}
	}
	return "", false
}
