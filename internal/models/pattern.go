package models

// AnomalyType enumerates detected deviations.
type AnomalyType string

const (
	AnomalyMetricSpike    AnomalyType = "metric_spike"
	AnomalyMetricDrop     AnomalyType = "metric_drop"
	AnomalyErrorRateSpike AnomalyType = "error_rate_spike"
)

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Anomaly is a deviation detected in a single data source.
type Anomaly struct {
	Type        AnomalyType `json:"type"`
	Timestamp   string      `json:"timestamp"`
	Severity    Severity    `json:"severity"`
	Description string      `json:"description"`
	Source      string      `json:"source"`
	ErrorRate   *float64    `json:"error_rate,omitempty"`
}

// ErrorCluster groups raw error messages sharing a normalized pattern.
type ErrorCluster struct {
	Pattern    string   `json:"pattern"`
	Count      int      `json:"count"`
	Examples   []string `json:"examples"`
	Sources    []string `json:"sources"`
	StackTrace *string  `json:"stack_trace"`
}

// TimelineEventType distinguishes collection context from detected anomalies.
type TimelineEventType string

const (
	TimelineContext TimelineEventType = "context"
	TimelineAnomaly TimelineEventType = "anomaly"
)

// TimelineEvent records a notable point during the incident window.
type TimelineEvent struct {
	Time     string            `json:"time"`
	Event    string            `json:"event"`
	Type     TimelineEventType `json:"type"`
	Severity Severity          `json:"severity,omitempty"`
}

// PatternAnalysis is the PATTERN_ANALYSIS section.
type PatternAnalysis struct {
	Anomalies     []Anomaly       `json:"anomalies"`
	ErrorClusters []ErrorCluster  `json:"error_clusters"`
	Correlations  []Correlation   `json:"correlations"`
	Timeline      []TimelineEvent `json:"timeline"`
}
