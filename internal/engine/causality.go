package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

const (
	temporalAlignmentConfidence = 0.85
	deploymentConfidence        = 0.75
	defaultAlignmentWindow      = 5 * time.Minute
)

var deploymentKeywords = []string{"deploy", "rollout"}

// Correlator links anomalies that line up in time or follow a deployment.
type Correlator struct {
	logger *zap.Logger
	window time.Duration
}

// NewCorrelator constructs a Correlator using the default five minute window.
func NewCorrelator(logger *zap.Logger) *Correlator {
	return &Correlator{logger: utils.OrNop(logger), window: defaultAlignmentWindow}
}

// Correlate returns temporal alignments followed by an optional deployment correlation.
func (c *Correlator) Correlate(problem models.ProblemStatement, anomalies []models.Anomaly) []models.Correlation {
	correlations := c.TemporalAlignments(anomalies)
	if deployment, ok := c.DeploymentCorrelation(problem.Description, anomalies); ok {
		correlations = append(correlations, deployment)
	}
	return correlations
}

// TemporalAlignments pairs every metric-family anomaly with every error-family
// anomaly that occurred within the window.
func (c *Correlator) TemporalAlignments(anomalies []models.Anomaly) []models.Correlation {
	correlations := make([]models.Correlation, 0)
	for _, metric := range anomalies {
		if !isMetricFamily(metric.Type) {
			continue
		}
		for _, errAnomaly := range anomalies {
			if !isErrorFamily(errAnomaly.Type) {
				continue
			}
			delta, ok := c.withinWindow(metric.Timestamp, errAnomaly.Timestamp)
			if !ok {
				continue
			}
			correlations = append(correlations, models.Correlation{
				Type: models.CorrelationTemporalAlignment,
				Description: fmt.Sprintf("%s in %s aligned with %s in %s within %.1f minutes",
					metric.Type, metric.Source, errAnomaly.Type, errAnomaly.Source, delta),
				Confidence: temporalAlignmentConfidence,
				Events:     []models.Anomaly{metric, errAnomaly},
			})
		}
	}
	return correlations
}

// DeploymentCorrelation emits a correlation anchored on the earliest anomaly when
// the problem description mentions a deployment.
func (c *Correlator) DeploymentCorrelation(description string, anomalies []models.Anomaly) (models.Correlation, bool) {
	if len(anomalies) == 0 || !MentionsDeployment(description) {
		return models.Correlation{}, false
	}
	earliest := earliestAnomaly(anomalies)
	return models.Correlation{
		Type:        models.CorrelationDeployment,
		Description: fmt.Sprintf("Incident follows a deployment; earliest anomaly %s in %s at %s", earliest.Type, earliest.Source, earliest.Timestamp),
		Confidence:  deploymentConfidence,
		Events:      []models.Anomaly{earliest},
	}, true
}

// withinWindow reports the absolute gap in minutes and whether it fits the window.
// Unparsable timestamps are never close.
func (c *Correlator) withinWindow(a, b string) (float64, bool) {
	ta, err := utils.ParseISO8601(a)
	if err != nil {
		c.logger.Debug("skipping unparsable timestamp", zap.String("timestamp", a), zap.Error(err))
		return 0, false
	}
	tb, err := utils.ParseISO8601(b)
	if err != nil {
		c.logger.Debug("skipping unparsable timestamp", zap.String("timestamp", b), zap.Error(err))
		return 0, false
	}
	minutes := utils.DurationMinutes(ta, tb)
	return minutes, minutes <= c.window.Minutes()
}

// MentionsDeployment reports whether text refers to a deploy or rollout.
func MentionsDeployment(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range deploymentKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func isMetricFamily(t models.AnomalyType) bool {
	return strings.Contains(string(t), "metric")
}

func isErrorFamily(t models.AnomalyType) bool {
	return strings.Contains(string(t), "error")
}

func earliestAnomaly(anomalies []models.Anomaly) models.Anomaly {
	earliest := anomalies[0]
	for _, anomaly := range anomalies[1:] {
		if anomaly.Timestamp == "" {
			continue
		}
		if earliest.Timestamp == "" || anomaly.Timestamp < earliest.Timestamp {
			earliest = anomaly
		}
	}
	return earliest
}
