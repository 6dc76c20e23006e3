package models

// EvidenceType enumerates the origin of an evidence item.
type EvidenceType string

const (
	EvidenceAnomaly      EvidenceType = "anomaly"
	EvidenceErrorCluster EvidenceType = "error_cluster"
	EvidenceCorrelation  EvidenceType = "correlation"
	EvidenceCodeIssue    EvidenceType = "code_issue"
)

// EvidenceItem is a weighted fact supporting a root-cause hypothesis.
type EvidenceItem struct {
	Type        EvidenceType `json:"type"`
	Source      string       `json:"source"`
	Severity    Severity     `json:"severity"`
	Description string       `json:"description"`
	Weight      float64      `json:"weight"`
	Confidence  *float64     `json:"confidence,omitempty"`
}

// CausalStepType classifies a causal chain step.
type CausalStepType string

const (
	CausalContext   CausalStepType = "context"
	CausalAnomaly   CausalStepType = "anomaly"
	CausalRootCause CausalStepType = "root_cause"
)

// CausalChainStep is one link of the narrative leading to the incident.
type CausalChainStep struct {
	Step        int            `json:"step"`
	Description string         `json:"description"`
	Timestamp   string         `json:"timestamp"`
	Type        CausalStepType `json:"type"`
}

// Synthesis is the intermediate output of evidence synthesis.
type Synthesis struct {
	Evidence            []EvidenceItem      `json:"evidence"`
	CausalChain         []CausalChainStep   `json:"causal_chain"`
	DataCompleteness    float64             `json:"data_completeness"`
	Consistency         float64             `json:"consistency"`
	TimelineCorrelation TimelineCorrelation `json:"timeline_correlation"`
}

// Hypothesis is a classified root cause before confidence scoring.
type Hypothesis struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// RootCause is the hypothesis with its calibrated confidence.
type RootCause struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
}

// TimelineCorrelation summarises how the incident lines up with deployments and errors.
type TimelineCorrelation struct {
	DeploymentMentioned bool   `json:"deployment_mentioned"`
	FirstErrorTime      string `json:"first_error_time"`
	Alignment           string `json:"alignment"`
}

// Priority orders remediation actions.
type Priority string

const (
	PriorityImmediate Priority = "immediate"
	PriorityHigh      Priority = "high"
	PriorityMedium    Priority = "medium"
	PriorityLow       Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityImmediate: 0,
	PriorityHigh:      1,
	PriorityMedium:    2,
	PriorityLow:       3,
}

// Rank returns the sort order of the priority; unknown priorities sort last.
func (p Priority) Rank() int {
	if rank, ok := priorityRank[p]; ok {
		return rank
	}
	return len(priorityRank)
}

// Recommendation is a prioritized remediation action.
type Recommendation struct {
	Priority    Priority `json:"priority"`
	Action      string   `json:"action"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
}

// Diagnosis is the FINAL_DIAGNOSIS section.
type Diagnosis struct {
	RootCause           RootCause           `json:"root_cause"`
	Evidence            []string            `json:"evidence"`
	TimelineCorrelation TimelineCorrelation `json:"timeline_correlation"`
	RecommendedActions  []Recommendation    `json:"recommended_actions"`
}
