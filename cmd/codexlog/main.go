package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/anthropic/codexlog/internal/analysis"
	"github.com/anthropic/codexlog/internal/config"
	"github.com/anthropic/codexlog/internal/logging"
	"github.com/anthropic/codexlog/internal/report"
	"github.com/anthropic/codexlog/internal/sessionparser"
	"github.com/anthropic/codexlog/internal/store"
	"github.com/anthropic/codexlog/internal/watcher"
)

// app carries the configuration and logger resolved by the root command.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		logFormat  string
	)
	a := &app{log: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:          "codexlog",
		Short:        "Normalize and analyze Codex CLI session logs",
		Long:         "codexlog turns Codex CLI JSONL session logs into a flat message list and scans them for failed tool calls.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if logFormat != "" {
				cfg.LogFormat = logFormat
			}

			logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.ConfigPath(), "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")

	rootCmd.AddCommand(parseCmd(a))
	rootCmd.AddCommand(failuresCmd(a))
	rootCmd.AddCommand(flagsCmd(a))
	rootCmd.AddCommand(exportCmd(a))
	rootCmd.AddCommand(exportsCmd(a))
	rootCmd.AddCommand(watchCmd(a))

	return rootCmd
}

// parser builds a parser for the named preset, or the configured one when
// preset is empty. Configured per-kind overrides apply either way.
func (a *app) parser(preset string) (*sessionparser.Parser, error) {
	if preset == "" {
		preset = a.cfg.Policy.Preset
	}
	base, err := sessionparser.PolicyForPreset(preset)
	if err != nil {
		return nil, err
	}
	return sessionparser.New(
		sessionparser.WithPolicy(base.Merge(a.cfg.Policy.Policy)),
		sessionparser.WithLogger(a.log),
	), nil
}

// discover resolves path to the logs a scan should read.
func (a *app) discover(path string) ([]string, error) {
	files, err := sessionparser.Discover(path, watcher.NewFilter(a.cfg.Scan.IgnorePatterns))
	if err != nil {
		return nil, err
	}
	a.log.Debug().Str("root", path).Int("files", len(files)).Msg("discovered session logs")
	return files, nil
}

// warnFileErrors logs the logs a scan could not read.
func (a *app) warnFileErrors(errs []analysis.FileError) {
	for _, fe := range errs {
		a.log.Warn().Str("path", fe.Path).Str("error", fe.Err).Msg("failed to parse log")
	}
}

// checkScanned fails a multi-file command only when logs were found and
// none of them could be read.
func checkScanned(failed, total int) error {
	if total > 0 && failed == total {
		return fmt.Errorf("none of the %d logs could be parsed", total)
	}
	return nil
}

// openStore opens dbPath, or the configured database when it is empty.
func (a *app) openStore(dbPath string) (*store.Store, string, error) {
	if dbPath == "" {
		if err := a.cfg.EnsureDataDir(); err != nil {
			return nil, "", fmt.Errorf("create data dir: %w", err)
		}
		dbPath = a.cfg.DBPath
	} else if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, "", fmt.Errorf("create db dir: %w", err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return nil, "", fmt.Errorf("open store: %w", err)
	}
	return s, dbPath, nil
}

func parseCmd(a *app) *cobra.Command {
	var (
		preset    string
		showStats bool
	)

	cmd := &cobra.Command{
		Use:   "parse <log.jsonl>",
		Short: "Print the normalized messages of one log as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.parser(preset)
			if err != nil {
				return err
			}

			res, err := p.ParseFile(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), report.FormatJSON(res.Messages))
			if showStats {
				fmt.Fprintln(cmd.ErrOrStderr(), report.FormatJSON(res.Stats))
			}
			if res.Stats.Malformed > 0 {
				a.log.Info().Int("malformed", res.Stats.Malformed).Str("path", args[0]).Msg("skipped malformed lines")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&preset, "policy", "", "Record policy preset (full, compact)")
	cmd.Flags().BoolVar(&showStats, "stats", false, "Print parse statistics to stderr")

	return cmd
}

func failuresCmd(a *app) *cobra.Command {
	var (
		jsonOutput bool
		prefix     string
		workers    int
	)

	cmd := &cobra.Command{
		Use:   "failures <path>",
		Short: "List failed tool calls in a log or a directory of logs",
		Long: `Scan JSONL logs for function calls whose output starts with the
failure prefix ("tool call error:" by default). Directories are searched
recursively.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.discover(args[0])
			if err != nil {
				return err
			}
			p, err := a.parser("")
			if err != nil {
				return err
			}
			if prefix == "" {
				prefix = a.cfg.Analysis.FailurePrefix
			}
			if workers <= 0 {
				workers = a.cfg.Scan.Workers
			}

			r, err := analysis.ScanFailures(cmd.Context(), files, analysis.ScanOptions{
				Parser:  p,
				Workers: workers,
				Prefix:  prefix,
			})
			if err != nil {
				return err
			}
			a.warnFileErrors(r.Errors)

			if jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), report.FormatJSON(r))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), report.FormatFailureReport(r))
			}
			a.log.Info().Msg(report.FormatFailureSummary(r))
			return checkScanned(len(r.Errors), len(files))
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Output prefix that marks a failed call")
	cmd.Flags().IntVar(&workers, "workers", 0, "Logs parsed in parallel")

	return cmd
}

func flagsCmd(a *app) *cobra.Command {
	var (
		defaults string
		tool     string
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "flags <path>",
		Short: "Collect the distinct compiler flag sets passed to a build tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.discover(args[0])
			if err != nil {
				return err
			}
			p, err := a.parser("")
			if err != nil {
				return err
			}
			if tool == "" {
				tool = a.cfg.Analysis.FlagTool
			}
			defaultFlags := a.cfg.Analysis.DefaultFlags
			if cmd.Flags().Changed("default") {
				defaultFlags = analysis.ParseFlagList(defaults)
			}
			if workers <= 0 {
				workers = a.cfg.Scan.Workers
			}

			r, err := analysis.ScanFlags(cmd.Context(), files, tool, defaultFlags, analysis.ScanOptions{
				Parser:  p,
				Workers: workers,
			})
			if err != nil {
				return err
			}
			a.warnFileErrors(r.Errors)

			fmt.Fprintln(cmd.OutOrStdout(), report.FormatJSON(r))
			return checkScanned(len(r.Errors), len(files))
		},
	}

	cmd.Flags().StringVar(&defaults, "default", "", "Comma-separated flags assumed when a call has none")
	cmd.Flags().StringVar(&tool, "tool", "", "Function name of the build tool")
	cmd.Flags().IntVar(&workers, "workers", 0, "Logs parsed in parallel")

	return cmd
}

func exportCmd(a *app) *cobra.Command {
	var (
		dbPath string
		preset string
	)

	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Parse logs and store their messages in SQLite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := a.discover(args[0])
			if err != nil {
				return err
			}
			if preset == "" {
				preset = a.cfg.Policy.Preset
			}
			p, err := a.parser(preset)
			if err != nil {
				return err
			}

			s, resolved, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			a.log.Debug().Str("db", resolved).Msg("opened export store")

			failed := 0
			for _, path := range files {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				res, err := p.ParseFile(path)
				if err != nil {
					a.log.Warn().Err(err).Str("path", path).Msg("failed to parse log")
					failed++
					continue
				}
				exp, err := s.SaveExport(path, preset, res)
				if err != nil {
					return fmt.Errorf("export %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", exp.ID, exp.MessageCount, path)
			}

			return checkScanned(failed, len(files))
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")
	cmd.Flags().StringVar(&preset, "policy", "", "Record policy preset (full, compact)")

	return cmd
}

func exportsCmd(a *app) *cobra.Command {
	var (
		dbPath     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "exports",
		Short: "List stored exports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, resolved, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()

			exports, err := s.ListExports()
			if err != nil {
				return fmt.Errorf("list exports: %w", err)
			}
			if jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), report.FormatJSON(exports))
				return nil
			}

			status := report.StoreStatus{DBPath: resolved}
			if status.DBSizeBytes, err = s.DBSizeBytes(); err != nil {
				return fmt.Errorf("db size: %w", err)
			}
			if status.MessageCount, err = s.MessageCount(); err != nil {
				return fmt.Errorf("count messages: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.FormatExports(exports, status, time.Now()))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func watchCmd(a *app) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-scan session logs for failed calls as they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.parser("")
			if err != nil {
				return err
			}
			out := newSyncWriter(cmd.OutOrStdout())
			prefix := a.cfg.Analysis.FailurePrefix

			onChange := func(c watcher.Change) {
				res, err := p.ParseFile(c.Path)
				if err != nil {
					a.log.Warn().Err(err).Str("path", c.Path).Msg("failed to parse log")
					return
				}
				failures := analysis.FailedCalls(res.Messages, prefix)
				a.log.Debug().Str("path", c.Path).Int("writes", c.Count).Int("failures", len(failures)).Msg("log changed")
				if len(failures) == 0 {
					return
				}
				var b strings.Builder
				b.WriteString(c.Path + "\n")
				for _, m := range failures {
					name := analysis.UnknownName
					if m.Name != nil && *m.Name != "" {
						name = *m.Name
					}
					b.WriteString("  " + name + "\n")
				}
				out.WriteString(b.String())
			}

			w := watcher.New(args[0], watcher.NewFilter(a.cfg.Scan.IgnorePatterns), window, onChange, a.log)
			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().DurationVar(&window, "quiet-window", watcher.DefaultQuietWindow, "Time a log must stay unchanged before it is re-scanned")

	return cmd
}
