package engine

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

const rollbackConfidenceThreshold = 0.5

var (
	nilPointerPattern  = regexp.MustCompile(`(?i)\b(nil|null)[ _-]?pointer|nullpointerexception|\bnpe\b`)
	outOfBoundsPattern = regexp.MustCompile(`(?i)index out of (range|bounds)|out of bounds|\bbounds\b`)
)

// RecommendationGenerator turns a diagnosis into prioritized remediation actions.
type RecommendationGenerator struct {
	rules *RuleEngine
}

// NewRecommendationGenerator constructs a generator. rules may be nil.
func NewRecommendationGenerator(rules *RuleEngine) *RecommendationGenerator {
	return &RecommendationGenerator{rules: rules}
}

// Generate evaluates each trigger independently and sorts by priority. Actions
// sharing a priority keep the order they were produced in.
func (g *RecommendationGenerator) Generate(hypothesis models.Hypothesis, confidence float64, summary models.TimelineCorrelation, evidence []models.EvidenceItem) []models.Recommendation {
	recommendations := make([]models.Recommendation, 0, 5)

	if confidence > rollbackConfidenceThreshold && summary.DeploymentMentioned {
		recommendations = append(recommendations, models.Recommendation{
			Priority:    models.PriorityImmediate,
			Action:      "Roll back the recent deployment",
			Description: fmt.Sprintf("The incident follows a deployment and the diagnosis confidence is %.2f. Revert to the last known good release while the fix is prepared.", confidence),
		})
	}

	codeIssue, hasCodeIssue := firstOfType(evidence, models.EvidenceCodeIssue)
	if hasCodeIssue {
		recommendations = append(recommendations, codeFixRecommendation(codeIssue))
	}
	if hasCodeIssue {
		recommendations = append(recommendations, models.Recommendation{
			Priority:    models.PriorityMedium,
			Action:      "Add unit tests",
			Description: "Cover the failing code path with unit tests that reproduce the incident conditions.",
		})
	}
	if _, ok := firstOfType(evidence, models.EvidenceAnomaly); ok {
		recommendations = append(recommendations, models.Recommendation{
			Priority:    models.PriorityMedium,
			Action:      "Add monitoring alert",
			Description: "Alert on the anomalous signals observed during this incident so recurrence is caught early.",
		})
	}
	if hasCodeIssue {
		recommendations = append(recommendations, models.Recommendation{
			Priority:    models.PriorityLow,
			Action:      "Review similar code patterns",
			Description: "Search the codebase for the same construct and apply the fix wherever it recurs.",
		})
	}

	recommendations = appendUniqueActions(recommendations, g.rules.Recommend(hypothesis, evidence)...)

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Priority.Rank() < recommendations[j].Priority.Rank()
	})
	return recommendations
}

func codeFixRecommendation(item models.EvidenceItem) models.Recommendation {
	location, _ := ExtractLocation(item.Description)
	rec := models.Recommendation{
		Priority:    models.PriorityHigh,
		Action:      "Review and fix the suspect code",
		Description: item.Description,
		Location:    location,
	}
	switch {
	case nilPointerPattern.MatchString(item.Description):
		rec.Action = "Add nil-safety checks"
		rec.Description = "Guard the dereference with a nil check and handle the missing value explicitly. " + item.Description
	case outOfBoundsPattern.MatchString(item.Description):
		rec.Action = "Add bounds checking"
		rec.Description = "Validate the index against the collection length before access. " + item.Description
	}
	return rec
}

func firstOfType(evidence []models.EvidenceItem, kind models.EvidenceType) (models.EvidenceItem, bool) {
	for _, item := range evidence {
		if item.Type == kind {
			return item, true
		}
	}
	return models.EvidenceItem{}, false
}

func appendUniqueActions(existing []models.Recommendation, additions ...models.Recommendation) []models.Recommendation {
	seen := make(map[string]struct{}, len(existing))
	for _, rec := range existing {
		seen[strings.ToLower(rec.Action)] = struct{}{}
	}
	for _, rec := range additions {
		key := strings.ToLower(rec.Action)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		existing = append(existing, rec)
		seen[key] = struct{}{}
	}
	return existing
}

// RuleEngine appends operator-defined recommendations loaded from a YAML rule pack.
type RuleEngine struct {
	rules  []Rule
	logger *zap.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID          string          `yaml:"id"`
	Match       RuleMatch       `yaml:"match"`
	Priority    models.Priority `yaml:"priority"`
	Action      string          `yaml:"action"`
	Description string          `yaml:"description"`
}

// RuleMatch defines optional attributes for rule matching. Every set attribute must match.
type RuleMatch struct {
	RootCauseType       string   `yaml:"root_cause_type"`
	EvidenceType        string   `yaml:"evidence_type"`
	DescriptionContains []string `yaml:"description_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or missing, returns nil engine.
func NewRuleEngine(path string, logger *zap.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rule pack %s: %w", path, err)
	}

	logger = utils.OrNop(logger)
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		if rule.Action == "" {
			logger.Warn("skipping rule without action", zap.String("rule_id", rule.ID))
			continue
		}
		if rule.Priority.Rank() > models.PriorityLow.Rank() {
			// Unknown or missing priorities are treated as low.
			rule.Priority = models.PriorityLow
		}
		rules = append(rules, rule)
	}
	logger.Debug("loaded recommendation rules", zap.String("path", path), zap.Int("rules", len(rules)))
	return &RuleEngine{rules: rules, logger: logger}, nil
}

// Recommend returns the actions of every matching rule.
func (e *RuleEngine) Recommend(hypothesis models.Hypothesis, evidence []models.EvidenceItem) []models.Recommendation {
	if e == nil {
		return nil
	}

	matched := make([]models.Recommendation, 0)
	for _, rule := range e.rules {
		if rule.Match.RootCauseType != "" && !strings.EqualFold(rule.Match.RootCauseType, hypothesis.Type) {
			continue
		}
		if rule.Match.EvidenceType != "" && !evidenceHasType(rule.Match.EvidenceType, evidence) {
			continue
		}
		if len(rule.Match.DescriptionContains) > 0 && !descriptionsContain(rule.Match.DescriptionContains, hypothesis, evidence) {
			continue
		}
		e.logger.Debug("recommendation rule matched", zap.String("rule_id", rule.ID))
		matched = append(matched, models.Recommendation{
			Priority:    rule.Priority,
			Action:      rule.Action,
			Description: rule.Description,
			Location:    locationOrEmpty(hypothesis.Location),
		})
	}
	return matched
}

func evidenceHasType(kind string, evidence []models.EvidenceItem) bool {
	for _, item := range evidence {
		if strings.EqualFold(kind, string(item.Type)) {
			return true
		}
	}
	return false
}

func descriptionsContain(keywords []string, hypothesis models.Hypothesis, evidence []models.EvidenceItem) bool {
	texts := make([]string, 0, len(evidence)+1)
	texts = append(texts, strings.ToLower(hypothesis.Description))
	for _, item := range evidence {
		texts = append(texts, strings.ToLower(item.Description))
	}
	for _, text := range texts {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func locationOrEmpty(location string) string {
	if location == unknownRootCause {
		return ""
	}
	return location
}
