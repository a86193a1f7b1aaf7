// Package cmd implements the ratecal CLI command tree.
// This file defines the root command and registers all global persistent flags.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/ratecal/internal/app"
	"github.com/derickschaefer/ratecal/internal/config"
)

// globalFlags holds the parsed values of all persistent (global) flags.
// Commands read from this struct via the deps they receive.
var globalFlags struct {
	APIKey     string
	Format     string
	Out        string
	NoCache    bool
	Refresh    bool
	Timeout    string
	Rate       float64
	Quiet      bool
	Verbose    bool
	Debug      bool
	From       string
	CursorMode string
}

// rootCmd is the base command. Running `ratecal` with no subcommand
// prints help.
var rootCmd = &cobra.Command{
	Use:   "ratecal",
	Short: "ratecal — room rate and availability calendar",
	Long: `ratecal browses a property's room inventory and rate plans as a
two-dimensional calendar: dates run across, room categories run down.

Room categories are fetched page by page from the rate-calendar backend and
cached locally, so a calendar can be reopened offline.

Quick start:
  ratecal config init                              # create a config.json
  ratecal view --property 7 --start 2024-06-01     # print the visible window
  ratecal tui --property 7                         # interactive calendar
  ratecal export --property 7 --out rooms.jsonl    # save every room
  ratecal view --from rooms.jsonl                  # browse an export offline`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildDeps resolves config and constructs the dependency container.
// Called at the start of each command's RunE.
func buildDeps() (*app.Deps, error) {
	cfg, err := config.Load(globalFlags.APIKey)
	if err != nil {
		return nil, err
	}

	// Apply CLI flag overrides
	cfg.NoCache = globalFlags.NoCache
	cfg.Refresh = globalFlags.Refresh
	cfg.Quiet = globalFlags.Quiet
	cfg.Verbose = globalFlags.Verbose
	cfg.Debug = globalFlags.Debug
	cfg.From = globalFlags.From

	if globalFlags.Format != "" {
		cfg.Format = globalFlags.Format
	}
	if globalFlags.Timeout != "" {
		d, err := time.ParseDuration(globalFlags.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout %q: %w", globalFlags.Timeout, err)
		}
		cfg.Timeout = d
	}
	if globalFlags.Rate > 0 {
		cfg.Rate = globalFlags.Rate
	}
	if globalFlags.CursorMode != "" {
		cfg.CursorMode = globalFlags.CursorMode
	}

	if cfg.Debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		slog.Debug("config resolved", "api_key", cfg.RedactedAPIKey(), "base_url", cfg.BaseURL, "db", cfg.DBPath, "from", cfg.From)
	}

	return app.New(cfg)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&globalFlags.APIKey, "api-key", "",
		"backend API token (overrides env RATECAL_API_KEY, .env and config.json)")
	pf.StringVar(&globalFlags.Format, "format", "",
		"output format: table|json|jsonl|csv|tsv|md (default: table)")
	pf.StringVar(&globalFlags.Out, "out", "",
		"write output to file instead of stdout")
	pf.BoolVar(&globalFlags.NoCache, "no-cache", false,
		"bypass the local store entirely")
	pf.BoolVar(&globalFlags.Refresh, "refresh", false,
		"force re-fetch and overwrite cached pages")
	pf.StringVar(&globalFlags.Timeout, "timeout", "",
		"HTTP request timeout (e.g. 30s, 2m)")
	pf.Float64Var(&globalFlags.Rate, "rate", 0,
		"max API requests per second (default: 5.0)")
	pf.BoolVar(&globalFlags.Quiet, "quiet", false,
		"suppress all non-error output")
	pf.BoolVar(&globalFlags.Verbose, "verbose", false,
		"show cache/timing stats after output")
	pf.BoolVar(&globalFlags.Debug, "debug", false,
		"log HTTP requests and responses (API key redacted)")
	pf.StringVar(&globalFlags.From, "from", "",
		"read room categories from an exported JSONL file instead of the backend")
	pf.StringVar(&globalFlags.CursorMode, "cursor-mode", "",
		"pagination cursor handling: server|counter (default: server)")
}
