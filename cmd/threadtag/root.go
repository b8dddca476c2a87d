package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/threadtag/internal/config"
	"github.com/jackzampolin/threadtag/internal/home"
	"github.com/jackzampolin/threadtag/internal/output"
	"github.com/jackzampolin/threadtag/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "threadtag",
	Short: "Annotate conversation threads with per-message intent and tone keywords",
	Long: `Threadtag reads a CSV of conversation threads (a root message plus nested
replies, as JSON) and asks a generative model to tag every message with its
author and a few intent/tone keywords.

Model output is extracted, schema-checked, and retried with linear backoff.
Every input row produces exactly one output row, in order: either the
validated JSON annotation or an "ERROR ..." message.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := output.SetFormat(outputFormat); err != nil {
			return err
		}
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		// stdout carries structured output; logs go to stderr
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.threadtag/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "threadtag home directory (default: ~/.threadtag)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.AddCommand(annotateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves the home directory and loads configuration from it.
func loadConfig() (*home.Dir, *config.Config, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	if used := mgr.ConfigFileUsed(); used != "" {
		slog.Debug("loaded config", "path", used)
	}
	return h, mgr.Get(), nil
}
