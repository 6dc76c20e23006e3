package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/miradorstack/mirador-diagnose/internal/config"
	"github.com/miradorstack/mirador-diagnose/internal/engine"
	"github.com/miradorstack/mirador-diagnose/internal/llm"
	"github.com/miradorstack/mirador-diagnose/internal/scratchpad"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

// Bootstrap wires the store, hypothesis generator, rule pack and stages
// described by cfg into an IncidentService. The returned func releases the
// store and is always non-nil.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*IncidentService, func(), error) {
	logger = utils.OrNop(logger)
	closeFn := func() {}

	var store scratchpad.Store
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pg, err := scratchpad.NewPostgresStore(ctx, cfg.Store.DSN, cfg.Store.MaxConns, logger)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open scratchpad store: %w", err)
		}
		store, closeFn = pg, pg.Close
	default:
		store = scratchpad.NewMemoryStore(cfg.Store.MaxInvestigations)
	}

	hypotheses, err := hypothesisGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		closeFn()
		return nil, func() {}, err
	}

	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		closeFn()
		return nil, func() {}, fmt.Errorf("load rule pack: %w", err)
	}

	svc := NewIncidentService(
		logger,
		store,
		engine.NewPatternStage(logger, nil),
		engine.NewRootCauseStage(logger, hypotheses, rules, cfg.Engine.EvidenceLimit),
	)
	logger.Info("incident service ready",
		zap.String("store", cfg.Store.Driver),
		zap.Bool("llm", cfg.LLM.Enabled),
		zap.String("rules", cfg.Rules.Path),
	)
	return svc, closeFn, nil
}

func hypothesisGenerator(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (engine.HypothesisGenerator, error) {
	if !cfg.Enabled {
		return engine.NewFallbackHypothesisGenerator(nil, logger), nil
	}
	client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	primary := engine.NewLLMHypothesisGenerator(client).WithSampling(cfg.Temperature, cfg.MaxTokens)
	return engine.NewFallbackHypothesisGenerator(primary, logger), nil
}
