package engine

import (
	"math"

	"github.com/miradorstack/mirador-diagnose/internal/models"
)

const codeIssueBonus = 0.1

// CalculateConfidence combines evidence quality, completeness, consistency and the
// strongest correlation into a score in [0,1] rounded to two decimals.
func CalculateConfidence(evidence []models.EvidenceItem, completeness, consistency float64) float64 {
	scores := []float64{
		evidenceScore(evidence),
		clamp(completeness, 0, 1),
		clamp(consistency, 0, 1),
	}

	strongest, hasCorrelation := 0.0, false
	bonus := 0.0
	for _, item := range evidence {
		switch item.Type {
		case models.EvidenceCorrelation:
			confidence := item.Weight
			if item.Confidence != nil {
				confidence = *item.Confidence
			}
			if !hasCorrelation || confidence > strongest {
				strongest = confidence
			}
			hasCorrelation = true
		case models.EvidenceCodeIssue:
			bonus = codeIssueBonus
		}
	}
	if hasCorrelation {
		scores = append(scores, clamp(strongest, 0, 1))
	}

	final := math.Min(mean(scores)+bonus, 1.0)
	return clamp(math.Round(final*100)/100, 0, 1)
}

func evidenceScore(evidence []models.EvidenceItem) float64 {
	if len(evidence) == 0 {
		return 0
	}
	weights := make([]float64, len(evidence))
	for i, item := range evidence {
		weights[i] = clamp(item.Weight, 0, 1)
	}
	coverage := math.Min(float64(len(evidence))/10, 1.0)
	return mean(weights)*0.7 + coverage*0.3
}
