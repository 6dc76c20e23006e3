package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miradorstack/mirador-diagnose/internal/config"
	"github.com/miradorstack/mirador-diagnose/internal/engine"
	"github.com/miradorstack/mirador-diagnose/internal/models"
	"github.com/miradorstack/mirador-diagnose/internal/services"
	"github.com/miradorstack/mirador-diagnose/internal/utils"
)

type cliOptions struct {
	configPath string
	bundlePath string
	verbose    bool
	useLLM     bool
	full       bool
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "diagnosectl",
		Short:         "Run incident pattern analysis and root cause synthesis locally",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.bundlePath, "file", "f", "-", "investigation bundle (JSON), - for stdin")
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log stage progress to stderr")

	analyze := &cobra.Command{
		Use:   "analyze",
		Short: "Run both stages and print the diagnosis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}
	analyze.Flags().BoolVar(&opts.useLLM, "llm", false, "use the configured language model for hypotheses")
	analyze.Flags().BoolVar(&opts.full, "full", false, "print pattern analysis alongside the diagnosis")

	patterns := &cobra.Command{
		Use:   "patterns",
		Short: "Run pattern analysis only and print the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPatterns(cmd, opts)
		},
	}

	root.AddCommand(analyze, patterns)
	return root
}

func runAnalyze(cmd *cobra.Command, opts *cliOptions) error {
	req, err := readBundle(cmd.InOrStdin(), opts.bundlePath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg.Store.Driver = config.StoreMemory
	cfg.LLM.Enabled = opts.useLLM && cfg.LLM.APIKey != ""
	if opts.useLLM && !cfg.LLM.Enabled {
		fmt.Fprintln(cmd.ErrOrStderr(), "no llm api key configured, using heuristic hypotheses")
	}

	logger, err := cliLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, closeStore, err := services.Bootstrap(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	result, err := svc.Investigate(cmd.Context(), req)
	if err != nil {
		return err
	}
	if opts.full {
		return printJSON(cmd.OutOrStdout(), result)
	}
	return printJSON(cmd.OutOrStdout(), result.Diagnosis)
}

func runPatterns(cmd *cobra.Command, opts *cliOptions) error {
	req, err := readBundle(cmd.InOrStdin(), opts.bundlePath)
	if err != nil {
		return err
	}
	logger, err := cliLogger(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	analysis := engine.NewPatternStage(logger, nil).Analyze(req.Problem, req.Data)
	return printJSON(cmd.OutOrStdout(), analysis)
}

func readBundle(stdin io.Reader, path string) (models.InvestigationRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return models.InvestigationRequest{}, fmt.Errorf("read bundle: %w", err)
	}
	var req models.InvestigationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return models.InvestigationRequest{}, fmt.Errorf("decode bundle: %w", err)
	}
	return req, nil
}

func cliLogger(verbose bool) (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return utils.NewLogger("debug", false)
}

func printJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
