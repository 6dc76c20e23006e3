package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-diagnose/internal/models"
)

const maxCodeSuspects = 3

var anomalyWeights = map[models.Severity]float64{
	models.SeverityCritical: 1.0,
	models.SeverityHigh:     0.8,
	models.SeverityMedium:   0.6,
	models.SeverityLow:      0.4,
}

// SynthesisInput carries every section the root cause stage reads.
type SynthesisInput struct {
	Problem  models.ProblemStatement
	Data     models.DataCollection
	Patterns models.PatternAnalysis
	Code     *models.CodeInspection
}

// suspects returns at most the first three code inspection findings.
func (in SynthesisInput) suspects() []models.CodeInspectionFinding {
	if in.Code == nil {
		return nil
	}
	findings := in.Code.Findings
	if len(findings) > maxCodeSuspects {
		findings = findings[:maxCodeSuspects]
	}
	return findings
}

// EvidenceSynthesizer weighs pattern analysis output into ranked evidence.
type EvidenceSynthesizer struct{}

// NewEvidenceSynthesizer constructs an EvidenceSynthesizer.
func NewEvidenceSynthesizer() *EvidenceSynthesizer {
	return &EvidenceSynthesizer{}
}

// Synthesize builds the evidence list, causal chain and quality scores.
func (s *EvidenceSynthesizer) Synthesize(in SynthesisInput) models.Synthesis {
	suspects := in.suspects()
	evidence := s.CollectEvidence(in.Patterns, suspects)
	chain := s.BuildCausalChain(in.Patterns.Timeline, suspects)
	return models.Synthesis{
		Evidence:            evidence,
		CausalChain:         chain,
		DataCompleteness:    DataCompleteness(len(in.Data.Sources), in.Patterns, len(suspects)),
		Consistency:         Consistency(evidence, chain),
		TimelineCorrelation: s.TimelineSummary(in.Problem, in.Patterns),
	}
}

// CollectEvidence converts anomalies, the largest error cluster, correlations and
// code suspects into evidence sorted by weight descending.
func (s *EvidenceSynthesizer) CollectEvidence(patterns models.PatternAnalysis, suspects []models.CodeInspectionFinding) []models.EvidenceItem {
	evidence := make([]models.EvidenceItem, 0, len(patterns.Anomalies)+len(patterns.Correlations)+len(suspects)+1)

	for _, anomaly := range patterns.Anomalies {
		evidence = append(evidence, models.EvidenceItem{
			Type:        models.EvidenceAnomaly,
			Source:      anomaly.Source,
			Severity:    anomaly.Severity,
			Description: anomaly.Description,
			Weight:      AnomalyWeight(anomaly.Severity),
		})
	}

	if cluster, ok := topCluster(patterns.ErrorClusters); ok {
		description := fmt.Sprintf("Error pattern %q occurred %d times", cluster.Pattern, cluster.Count)
		if cluster.StackTrace != nil {
			description += " at " + *cluster.StackTrace
		}
		severity := models.SeverityMedium
		if cluster.Count >= 10 {
			severity = models.SeverityHigh
		}
		evidence = append(evidence, models.EvidenceItem{
			Type:        models.EvidenceErrorCluster,
			Source:      strings.Join(cluster.Sources, ", "),
			Severity:    severity,
			Description: description,
			Weight:      ClusterWeight(cluster.Count),
		})
	}

	for _, correlation := range patterns.Correlations {
		confidence := correlation.Confidence
		evidence = append(evidence, models.EvidenceItem{
			Type:        models.EvidenceCorrelation,
			Source:      string(correlation.Type),
			Severity:    models.SeverityMedium,
			Description: correlation.Description,
			Weight:      CorrelationWeight(confidence),
			Confidence:  &confidence,
		})
	}

	for _, finding := range suspects {
		evidence = append(evidence, models.EvidenceItem{
			Type:        models.EvidenceCodeIssue,
			Source:      "code_inspection",
			Severity:    models.SeverityHigh,
			Description: codeIssueDescription(finding),
			Weight:      CodeIssueWeight(finding),
		})
	}

	sort.SliceStable(evidence, func(i, j int) bool {
		return evidence[i].Weight > evidence[j].Weight
	})
	return evidence
}

// AnomalyWeight maps severity to weight; unknown severities weigh 0.5.
func AnomalyWeight(severity models.Severity) float64 {
	if weight, ok := anomalyWeights[severity]; ok {
		return weight
	}
	return 0.5
}

// ClusterWeight scales with occurrence count. Clusters of ten or more never weigh
// below 0.3; smaller clusters scale linearly up to 0.3.
func ClusterWeight(count int) float64 {
	if count >= 10 {
		return math.Max(clamp(float64(count-10)/90, 0, 1), 0.3)
	}
	return clamp(float64(count)/10*0.3, 0, 1)
}

// CorrelationWeight uses the correlation confidence, defaulting to 0.5 when unset.
func CorrelationWeight(confidence float64) float64 {
	if confidence <= 0 || math.IsNaN(confidence) {
		return 0.5
	}
	return clamp(confidence, 0, 1)
}

// CodeIssueWeight favours recently changed code.
func CodeIssueWeight(finding models.CodeInspectionFinding) float64 {
	date := finding.GitBlame.Date
	if strings.Contains(date, "2024") || strings.Contains(date, "2025") {
		return 0.9
	}
	return 0.8
}

func codeIssueDescription(finding models.CodeInspectionFinding) string {
	description := fmt.Sprintf("Suspect code at %s", finding.Location())
	if finding.Function != "" {
		description += fmt.Sprintf(" in %s", finding.Function)
	}
	if finding.Analysis != "" {
		description += ": " + finding.Analysis
	}
	return description
}

func topCluster(clusters []models.ErrorCluster) (models.ErrorCluster, bool) {
	if len(clusters) == 0 {
		return models.ErrorCluster{}, false
	}
	top := clusters[0]
	for _, cluster := range clusters[1:] {
		if cluster.Count > top.Count {
			top = cluster
		}
	}
	return top, true
}

// BuildCausalChain numbers the timeline from 1 and closes it with the first code
// suspect when one exists.
func (s *EvidenceSynthesizer) BuildCausalChain(timeline []models.TimelineEvent, suspects []models.CodeInspectionFinding) []models.CausalChainStep {
	chain := make([]models.CausalChainStep, 0, len(timeline)+1)
	for _, event := range timeline {
		stepType := models.CausalContext
		if event.Type == models.TimelineAnomaly {
			stepType = models.CausalAnomaly
		}
		chain = append(chain, models.CausalChainStep{
			Step:        len(chain) + 1,
			Description: event.Event,
			Timestamp:   event.Time,
			Type:        stepType,
		})
	}
	if len(suspects) > 0 {
		chain = append(chain, models.CausalChainStep{
			Step:        len(chain) + 1,
			Description: codeIssueDescription(suspects[0]),
			Timestamp:   suspects[0].GitBlame.Date,
			Type:        models.CausalRootCause,
		})
	}
	return chain
}

// DataCompleteness averages four coverage factors into [0,1].
func DataCompleteness(sourceCount int, patterns models.PatternAnalysis, suspectCount int) float64 {
	factors := []float64{
		math.Min(float64(sourceCount)/2, 1),
		pick(len(patterns.Anomalies) > 0, 1.0, 0.5),
		pick(len(patterns.ErrorClusters) > 0, 1.0, 0.7),
		pick(suspectCount > 0, 1.0, 0.6),
	}
	return clamp(mean(factors), 0, 1)
}

// Consistency rewards evidence agreeing on few types and a well populated chain.
// Without evidence there is nothing to agree, so the score is zero.
func Consistency(evidence []models.EvidenceItem, chain []models.CausalChainStep) float64 {
	if len(evidence) == 0 {
		return 0
	}
	types := make(map[models.EvidenceType]struct{}, len(evidence))
	for _, item := range evidence {
		types[item.Type] = struct{}{}
	}

	var score float64
	switch {
	case len(types) == 1:
		score = 1.0
	case len(types) <= 3:
		score = 0.8
	default:
		score = 0.6
	}
	if len(chain) >= 3 {
		score += 0.1
	}
	return clamp(score, 0, 1)
}

// TimelineSummary reports deployment mentions, the first anomalous event and the
// first temporal alignment.
func (s *EvidenceSynthesizer) TimelineSummary(problem models.ProblemStatement, patterns models.PatternAnalysis) models.TimelineCorrelation {
	summary := models.TimelineCorrelation{
		DeploymentMentioned: MentionsDeployment(problem.Description),
	}
	for _, event := range patterns.Timeline {
		if event.Type == models.TimelineAnomaly || event.Type == "error" {
			summary.FirstErrorTime = event.Time
			break
		}
	}
	for _, correlation := range patterns.Correlations {
		if correlation.Type.IsTemporal() {
			summary.Alignment = correlation.Description
			break
		}
	}
	return summary
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(value, min, max float64) float64 {
	if math.IsNaN(value) {
		return min
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
