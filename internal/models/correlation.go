package models

import "strings"

// CorrelationType enumerates cross-signal relationships.
type CorrelationType string

const (
	CorrelationTemporalAlignment CorrelationType = "temporal_alignment"
	CorrelationDeployment        CorrelationType = "deployment_correlation"
)

// IsTemporal reports whether the correlation is time based.
func (t CorrelationType) IsTemporal() bool {
	return strings.Contains(string(t), "temporal")
}

// Correlation links anomalies that likely share a cause.
type Correlation struct {
	Type        CorrelationType `json:"type"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
	Events      []Anomaly       `json:"events"`
}
