package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/threadtag/internal/annotate"
	"github.com/jackzampolin/threadtag/internal/config"
	"github.com/jackzampolin/threadtag/internal/home"
	"github.com/jackzampolin/threadtag/internal/llmcall"
	"github.com/jackzampolin/threadtag/internal/output"
	"github.com/jackzampolin/threadtag/internal/pipeline"
	"github.com/jackzampolin/threadtag/internal/providers"
)

const (
	defaultInputPath  = "conversations.csv"
	defaultOutputPath = "agent1_data.csv"

	// traceAuto writes the trace to a timestamped file under ~/.threadtag/traces.
	traceAuto = "auto"
)

var (
	annProvider string
	annModel    string
	annWorkers  int
	annAttempts int
	annBackoff  float64
	annColumn   string
	annCheckIDs bool
	annTrace    string
)

var annotateCmd = &cobra.Command{
	Use:   "annotate [input.csv] [output.csv]",
	Short: "Annotate every conversation in a CSV file",
	Long: `Annotate reads conversation threads from the input CSV and writes an
input,output CSV with one row per input row, in the same order.

The conversation is taken from the "conversation" column (or --column),
falling back to the first column. Rows whose model response cannot be
parsed or validated after all attempts get an "ERROR ..." output.

Examples:
  threadtag annotate                              # conversations.csv -> agent1_data.csv
  threadtag annotate in.csv out.csv --workers 4   # parallel rows, order preserved
  threadtag annotate --provider openai --trace    # trace every model call`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		s := settingsFromConfig(cfg)
		s.input, s.output = defaultInputPath, defaultOutputPath
		if len(args) > 0 {
			s.input = args[0]
		}
		if len(args) > 1 {
			s.output = args[1]
		}
		applyAnnotateFlags(cmd, &s, cfg)

		summary, err := runAnnotate(cmd.Context(), cfg, h, s, slog.Default())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Done. Wrote %s. Success: %d/%d\n", s.output, summary.Succeeded, summary.Total)
		return output.Print(summary)
	},
}

func init() {
	f := annotateCmd.Flags()
	f.StringVar(&annProvider, "provider", "", "LLM provider name from config (default: defaults.llm_provider)")
	f.StringVar(&annModel, "model", "", "model override for the selected provider")
	f.IntVar(&annWorkers, "workers", 0, "rows annotated concurrently (default: defaults.max_workers)")
	f.IntVar(&annAttempts, "attempts", 0, "attempts per row (default: defaults.max_attempts)")
	f.Float64Var(&annBackoff, "backoff", 0, "backoff base in seconds; wait before attempt n+1 is base*n")
	f.StringVar(&annColumn, "column", "", "input column holding conversation JSON (default: input.conversation_column)")
	f.BoolVar(&annCheckIDs, "check-ids", false, "reject annotations whose ids differ from the conversation tree")
	f.StringVar(&annTrace, "trace", "", "write one JSON line per model call to --trace=FILE (bare --trace: ~/.threadtag/traces)")
	f.Lookup("trace").NoOptDefVal = traceAuto
}

// annotateSettings is the fully resolved configuration for one run.
type annotateSettings struct {
	input    string
	output   string
	provider string
	model    string
	workers  int
	policy   annotate.RetryPolicy
	column   string
	checkIDs bool
	trace    string
}

func settingsFromConfig(cfg *config.Config) annotateSettings {
	return annotateSettings{
		provider: cfg.Defaults.LLMProvider,
		workers:  cfg.Defaults.MaxWorkers,
		policy:   cfg.RetryPolicy(),
		column:   cfg.Input.ConversationColumn,
		checkIDs: cfg.Defaults.CheckIDs,
	}
}

// applyAnnotateFlags overrides config values with explicitly set flags.
func applyAnnotateFlags(cmd *cobra.Command, s *annotateSettings, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("provider") {
		s.provider = annProvider
	}
	if f.Changed("model") {
		s.model = annModel
	}
	if f.Changed("workers") {
		s.workers = annWorkers
	}
	if f.Changed("attempts") {
		s.policy.MaxAttempts = annAttempts
		cfg.Defaults.MaxAttempts = annAttempts
	}
	if f.Changed("backoff") {
		s.policy.BackoffBase = time.Duration(annBackoff * float64(time.Second))
		cfg.Defaults.BackoffSeconds = annBackoff
	}
	if f.Changed("column") {
		s.column = annColumn
	}
	if f.Changed("check-ids") {
		s.checkIDs = annCheckIDs
	}
	if f.Changed("trace") {
		s.trace = annTrace
	}
}

// runAnnotate validates configuration, builds the provider client, and runs
// the row pipeline from s.input to s.output. Configuration problems abort
// before any file is touched.
func runAnnotate(ctx context.Context, cfg *config.Config, h *home.Dir, s annotateSettings, logger *slog.Logger) (pipeline.Summary, error) {
	if err := cfg.Validate(s.provider); err != nil {
		return pipeline.Summary{}, err
	}

	registry, err := providers.NewRegistryFromConfig(ctx, cfg.ToProviderRegistryConfig())
	if err != nil {
		return pipeline.Summary{}, &config.Error{Key: "llm_providers", Reason: err.Error()}
	}
	registry.SetLogger(logger)
	client, err := registry.GetLLM(s.provider)
	if err != nil {
		return pipeline.Summary{}, &config.Error{Key: "llm_providers." + s.provider, Reason: err.Error()}
	}

	in, err := os.Open(s.input)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	recorder, closeTrace, err := openTrace(h, s.trace, logger)
	if err != nil {
		return pipeline.Summary{}, err
	}
	defer closeTrace()

	out, err := os.Create(s.output)
	if err != nil {
		return pipeline.Summary{}, fmt.Errorf("create output: %w", err)
	}
	defer out.Close()

	model := client.Model()
	if s.model != "" {
		model = s.model
	}
	provCfg, _ := cfg.GetLLMProvider(s.provider)

	ann := annotate.New(client,
		annotate.WithModel(s.model),
		annotate.WithTimeout(time.Duration(provCfg.TimeoutSeconds)*time.Second),
		annotate.WithTemperature(cfg.Defaults.Temperature),
		annotate.WithMaxTokens(cfg.Defaults.MaxOutputTokens),
		annotate.WithIDCheck(s.checkIDs),
		annotate.WithRecorder(recorder),
		annotate.WithLogger(logger),
	)

	logger.Info("annotating",
		"input", s.input,
		"output", s.output,
		"provider", client.Name(),
		"model", model,
		"workers", s.workers,
		"max_attempts", s.policy.MaxAttempts,
	)

	p := pipeline.New(ann,
		pipeline.WithPolicy(s.policy),
		pipeline.WithWorkers(s.workers),
		pipeline.WithColumn(s.column),
		pipeline.WithLogger(logger),
	)
	summary, runErr := p.Run(ctx, in, out)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close output: %w", err)
	}
	return summary, runErr
}

// openTrace opens the trace destination, if any. The returned close func is
// always non-nil.
func openTrace(h *home.Dir, trace string, logger *slog.Logger) (*llmcall.Recorder, func(), error) {
	if trace == "" {
		return nil, func() {}, nil
	}

	path := trace
	if trace == traceAuto {
		if err := h.EnsureExists(); err != nil {
			return nil, nil, err
		}
		path = h.TracePath(time.Now())
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create trace directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace: %w", err)
	}
	logger.Info("tracing model calls", "path", path)
	return llmcall.NewRecorder(f, logger), func() { closeQuietly(f, logger) }, nil
}

func closeQuietly(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("close failed", "error", err)
	}
}
