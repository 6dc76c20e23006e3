package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/miradorstack/mirador-diagnose/internal/llm"
	"github.com/miradorstack/mirador-diagnose/internal/metrics"
	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

const (
	unknownRootCause        = "unknown"
	insufficientDescription = "Insufficient evidence to determine root cause"

	hypothesisEvidenceLimit = 10
	hypothesisTemperature   = 0.3
	hypothesisMaxTokens     = 1000
)

const hypothesisSystemPrompt = `You are a senior site reliability engineer performing root cause analysis.
Use only the evidence provided. Name the most likely root cause category, explain it in one short paragraph
and cite the suspect source location as file:line when the evidence contains one.`

var locationPattern = regexp.MustCompile(`[\w/]+\.\w+:\d+`)

// rootCauseRules is evaluated in order; the first match wins.
var rootCauseRules = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{"nil_pointer_dereference", regexp.MustCompile(`(?i)\b(nil|null)[ _-]?pointer|nullpointerexception|\bnpe\b|nil (map|dereference)`)},
	{"index_out_of_bounds", regexp.MustCompile(`(?i)\bindex\b|\bbounds\b|out of range`)},
	{"concurrency_issue", regexp.MustCompile(`(?i)deadlock|\brace\b|data race`)},
	{"memory_issue", regexp.MustCompile(`(?i)memory leak|out of memory|\boom`)},
	{"timeout", regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded`)},
	{"auth_issue", regexp.MustCompile(`(?i)\bauth|unauthori[sz]ed|forbidden|permission denied`)},
	{"configuration_error", regexp.MustCompile(`(?i)config`)},
}

// HypothesisGenerator classifies the root cause behind ranked evidence.
type HypothesisGenerator interface {
	Generate(ctx context.Context, evidence []models.EvidenceItem, chain []models.CausalChainStep) (models.Hypothesis, error)
}

// ClassifyRootCause maps free text onto a root-cause type.
func ClassifyRootCause(text string) string {
	for _, rule := range rootCauseRules {
		if rule.pattern.MatchString(text) {
			return rule.kind
		}
	}
	return unknownRootCause
}

// ExtractLocation returns the first file:line reference in text.
func ExtractLocation(text string) (string, bool) {
	match := locationPattern.FindString(text)
	return match, match != ""
}

// resolveLocation prefers a location in text, then the top code issue, then "unknown".
func resolveLocation(text string, evidence []models.EvidenceItem) string {
	if location, ok := ExtractLocation(text); ok {
		return location
	}
	for _, item := range evidence {
		if item.Type != models.EvidenceCodeIssue {
			continue
		}
		if location, ok := ExtractLocation(item.Description); ok {
			return location
		}
		break
	}
	return unknownRootCause
}

func insufficientEvidence() models.Hypothesis {
	return models.Hypothesis{
		Type:        unknownRootCause,
		Description: insufficientDescription,
		Location:    unknownRootCause,
	}
}

// HeuristicHypothesisGenerator classifies the highest weighted evidence by keyword.
type HeuristicHypothesisGenerator struct{}

// Generate never fails.
func (HeuristicHypothesisGenerator) Generate(_ context.Context, evidence []models.EvidenceItem, _ []models.CausalChainStep) (models.Hypothesis, error) {
	if len(evidence) == 0 {
		return insufficientEvidence(), nil
	}
	top := evidence[0]
	return models.Hypothesis{
		Type:        ClassifyRootCause(top.Description),
		Description: top.Description,
		Location:    resolveLocation(top.Description, evidence),
	}, nil
}

// LLMHypothesisGenerator asks a language model to explain the evidence.
type LLMHypothesisGenerator struct {
	completer   llm.Completer
	temperature float64
	maxTokens   int
}

// NewLLMHypothesisGenerator wraps a completer with temperature 0.3 and a 1000 token budget.
func NewLLMHypothesisGenerator(completer llm.Completer) *LLMHypothesisGenerator {
	return &LLMHypothesisGenerator{
		completer:   completer,
		temperature: hypothesisTemperature,
		maxTokens:   hypothesisMaxTokens,
	}
}

// WithSampling overrides the sampling parameters. Non-positive token budgets are ignored.
func (g *LLMHypothesisGenerator) WithSampling(temperature float64, maxTokens int) *LLMHypothesisGenerator {
	g.temperature = temperature
	if maxTokens > 0 {
		g.maxTokens = maxTokens
	}
	return g
}

// Generate classifies the model's answer with the same keyword table as the heuristic path.
func (g *LLMHypothesisGenerator) Generate(ctx context.Context, evidence []models.EvidenceItem, chain []models.CausalChainStep) (models.Hypothesis, error) {
	if len(evidence) == 0 {
		return insufficientEvidence(), nil
	}
	if g.completer == nil {
		return models.Hypothesis{}, fmt.Errorf("llm completer not configured")
	}
	response, err := g.completer.Complete(ctx, BuildHypothesisPrompt(evidence, chain), hypothesisSystemPrompt, g.temperature, g.maxTokens)
	if err != nil {
		return models.Hypothesis{}, err
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return models.Hypothesis{}, llm.ErrEmptyResponse
	}
	return models.Hypothesis{
		Type:        ClassifyRootCause(response),
		Description: response,
		Location:    resolveLocation(response, evidence),
	}, nil
}

// BuildHypothesisPrompt renders the top evidence and the causal chain.
func BuildHypothesisPrompt(evidence []models.EvidenceItem, chain []models.CausalChainStep) string {
	var b strings.Builder
	b.WriteString("Analyze this production incident and identify the most likely root cause.\n\n")
	b.WriteString("Evidence (highest weight first):\n")
	for i, item := range evidence {
		if i == hypothesisEvidenceLimit {
			break
		}
		fmt.Fprintf(&b, "%d. [%s, %s, weight %.2f] %s (source: %s)\n",
			i+1, item.Type, item.Severity, item.Weight, item.Description, item.Source)
	}
	if len(chain) > 0 {
		b.WriteString("\nCausal chain:\n")
		for _, step := range chain {
			fmt.Fprintf(&b, "%d. %s [%s] %s\n", step.Step, step.Timestamp, step.Type, step.Description)
		}
	}
	b.WriteString("\nAnswer with the root cause category (for example nil pointer, index out of bounds, race, memory leak, timeout, auth, config), ")
	b.WriteString("a short explanation and the file:line location if known.")
	return b.String()
}

// FallbackHypothesisGenerator tries a primary strategy and falls back to the
// heuristic one on any error.
type FallbackHypothesisGenerator struct {
	primary  HypothesisGenerator
	fallback HypothesisGenerator
	logger   *zap.Logger
}

// NewFallbackHypothesisGenerator constructs the generator. A nil primary always
// uses the heuristic path.
func NewFallbackHypothesisGenerator(primary HypothesisGenerator, logger *zap.Logger) *FallbackHypothesisGenerator {
	return &FallbackHypothesisGenerator{
		primary:  primary,
		fallback: HeuristicHypothesisGenerator{},
		logger:   utils.OrNop(logger),
	}
}

// Generate never returns an error.
func (g *FallbackHypothesisGenerator) Generate(ctx context.Context, evidence []models.EvidenceItem, chain []models.CausalChainStep) (models.Hypothesis, error) {
	if len(evidence) == 0 {
		metrics.ObserveHypothesis(metrics.StrategyInsufficient)
		return insufficientEvidence(), nil
	}

	if g.primary != nil {
		hypothesis, err := g.primary.Generate(ctx, evidence, chain)
		if err == nil {
			metrics.ObserveHypothesis(metrics.StrategyLLM)
			return hypothesis, nil
		}
		g.logger.Warn("llm hypothesis failed, using heuristics", zap.Error(err))
	}

	hypothesis, _ := g.fallback.Generate(ctx, evidence, chain)
	metrics.ObserveHypothesis(metrics.StrategyHeuristic)
	return hypothesis, nil
}
