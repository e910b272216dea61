package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fimon/baseline"
	"fimon/config"
	"fimon/history"
	"fimon/logger"
	"fimon/metadata"
	"fimon/monitor"
	"fimon/output"
	"fimon/scanner"
	"fimon/systeminfo"
	"fimon/tracing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// DefaultFs backs the baseline and report files. Tests swap in a memory fs.
var DefaultFs afero.Fs = afero.NewOsFs()

// PromptRoot asks for the directory when none is given on the command line.
var PromptRoot = func(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter the directory to monitor: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

type rootOptions struct {
	configPath string
	logLevel   string

	baselineFile   string
	reportFile     string
	riskReportFile string
	historyDB      string
	hashAlgorithm  string
	exclude        []string
	interval       int
	maxIO          int
	beep           bool
	email          bool
	criticalOnly   bool
	riskScoring    bool
	fuzzyHash      bool
	cycles         int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "fimon",
		Short:         "File integrity monitor: baseline, diff, risk scoring and deduplicated alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "config.json", "Configuration file (.json, .toml, .yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.baselineFile, "baseline", "", "Baseline file")
	flags.StringVar(&opts.reportFile, "report", "", "Change report file")
	flags.StringSliceVar(&opts.exclude, "exclude", nil, "Exclusion patterns (substring, glob: or regex:)")
	flags.StringVar(&opts.hashAlgorithm, "hash", "", "Content hash algorithm (sha256, sha512, blake3)")
	flags.IntVar(&opts.maxIO, "max-io", 0, "Maximum files fingerprinted per second (0 = unlimited)")
	flags.BoolVar(&opts.fuzzyHash, "fuzzy-hash", false, "Record TLSH fuzzy digests")

	monitorCmd := &cobra.Command{
		Use:   "monitor [root]",
		Short: "Compare the directory against the baseline until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, opts, args)
		},
	}
	mflags := monitorCmd.Flags()
	mflags.StringVar(&opts.riskReportFile, "risk-report", "", "Risk report file")
	mflags.StringVar(&opts.historyDB, "history-db", "", "SQLite change history database")
	mflags.IntVar(&opts.interval, "interval", 0, "Seconds between cycles")
	mflags.BoolVar(&opts.beep, "beep", false, "Play a sound on change")
	mflags.BoolVar(&opts.email, "email", false, "Send email alerts")
	mflags.BoolVar(&opts.criticalOnly, "critical-only", false, "Alert on high risk changes only")
	mflags.BoolVar(&opts.riskScoring, "risk-scoring", true, "Score changes and write the risk report")

	initCmd := &cobra.Command{
		Use:   "init [root]",
		Short: "Fingerprint the directory and save it as the trusted baseline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts, args)
		},
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the latest change report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}
	reportCmd.Flags().StringVar(&opts.historyDB, "history-db", "", "SQLite change history database")
	reportCmd.Flags().IntVar(&opts.cycles, "cycles", 0, "Also list this many recent cycles from the history database")

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	rootCmd.AddCommand(initCmd, monitorCmd, reportCmd, configCmd)
	return rootCmd
}

// overrides applies only the flags that were set explicitly, so file values
// survive unless the user asked otherwise.
func overrides(cmd *cobra.Command, opts *rootOptions) func(*config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	return func(cfg *config.Config) {
		if changed("log-level") {
			cfg.LogLevel = opts.logLevel
		}
		if changed("baseline") {
			cfg.BaselineFile = opts.baselineFile
		}
		if changed("report") {
			cfg.ReportFile = opts.reportFile
		}
		if changed("exclude") {
			cfg.ExcludePatterns = opts.exclude
		}
		if changed("hash") {
			cfg.HashAlgorithm = opts.hashAlgorithm
		}
		if changed("max-io") {
			cfg.MaxIOPerSecond = opts.maxIO
		}
		if changed("fuzzy-hash") {
			cfg.FuzzyHash = opts.fuzzyHash
		}
		if changed("risk-report") {
			cfg.RiskReportFile = opts.riskReportFile
		}
		if changed("history-db") {
			cfg.HistoryDB = opts.historyDB
		}
		if changed("interval") {
			cfg.ScanInterval = opts.interval
		}
		if changed("beep") {
			cfg.BeepOnChange = opts.beep
		}
		if changed("email") {
			cfg.EmailAlert = opts.email
		}
		if changed("critical-only") {
			cfg.AlertCriticalOnly = opts.criticalOnly
		}
		if changed("risk-scoring") {
			cfg.RiskScoring = opts.riskScoring
		}
	}
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	loader, err := config.NewLoader(opts.configPath, overrides(cmd, opts))
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	cfg := loader.Current()
	logger.Init(cfg.LogLevel)
	return cfg, nil
}

// resolveRoot picks the root from the argument, the configuration, or an
// interactive prompt, in that order.
func resolveRoot(cmd *cobra.Command, args []string, configured string, prompt bool) (string, error) {
	root := ""
	if len(args) > 0 {
		root = args[0]
	} else if prompt {
		answer, err := PromptRoot(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		root = answer
	}
	if root == "" {
		root = configured
	}
	return scanner.ValidateRoot(root)
}

func runInit(cmd *cobra.Command, opts *rootOptions, args []string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	root, err := resolveRoot(cmd, args, cfg.RootDir, true)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	snap, stats, err := scanner.Scan(ctx, root, scanner.Options{
		ExcludePatterns: monitor.Exclusions(root, cfg),
		Metadata: metadata.Options{
			HashAlgorithm: cfg.HashAlgorithm,
			DetectMime:    true,
			FuzzyHash:     cfg.FuzzyHash,
		},
		MaxIOPerSecond: cfg.MaxIOPerSecond,
		ShowProgress:   true,
	})
	if err != nil {
		return fmt.Errorf("baseline scan failed: %w", err)
	}

	store := baseline.NewStore(DefaultFs, cfg.BaselineFile)
	if store.Exists() {
		fmt.Fprintf(cmd.OutOrStdout(), "Replacing existing baseline at %s\n", store.Path())
	}
	if err := store.Save(snap); err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"files":    stats.Files,
		"excluded": stats.Excluded,
		"failed":   stats.Failed,
		"elapsed":  time.Since(start).Round(time.Millisecond).String(),
	}).Info("Baseline created")
	fmt.Fprintf(cmd.OutOrStdout(), "Baseline saved to %s (%d files)\n", store.Path(), snap.Len())
	return nil
}

func runMonitor(cmd *cobra.Command, opts *rootOptions, args []string) error {
	loader, err := config.NewLoader(opts.configPath, overrides(cmd, opts))
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	defer loader.Close()
	cfg := loader.Current()
	logger.Init(cfg.LogLevel)

	root, err := resolveRoot(cmd, args, cfg.RootDir, false)
	if err != nil {
		return err
	}

	snap, err := baseline.NewStore(DefaultFs, cfg.BaselineFile).Load()
	if errors.Is(err, baseline.ErrBaselineMissing) {
		return fmt.Errorf("no baseline at %s: run `fimon init` first", cfg.BaselineFile)
	}
	if err != nil {
		return err
	}

	if cfg.Diag.TraceFile != "" {
		if err := tracing.Start(cfg.Diag.TraceFile); err != nil {
			logger.Warnf("Failed to start trace: %v", err)
		} else {
			defer tracing.Stop()
		}
	}
	if cfg.Diag.FlightRecorder {
		if err := tracing.StartFlightRecorder(0, 0); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer tracing.StopFlightRecorder()
		}
	}

	if err := loader.Watch(); err != nil {
		logger.Warnf("Configuration changes will apply on the next cycle only: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	host := systeminfo.GetHostInfo(ctx)
	writer := output.New(DefaultFs, cfg, host.Hostname)
	defer writer.Close()

	var hist monitor.HistoryStore
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			logger.Warnf("Change history disabled: %v", err)
		} else {
			defer store.Close()
			window := time.Duration(cfg.Risk.Behavior.WindowDays) * 24 * time.Hour
			if window > 0 {
				if err := store.Prune(time.Now().Add(-window)); err != nil {
					logger.Warnf("Failed to prune change history: %v", err)
				}
			}
			hist = store
		}
	}

	mon, err := monitor.New(monitor.Options{
		Root:     root,
		Baseline: snap,
		Config:   loader,
		Writer:   writer,
		History:  hist,
		Host:     host,
		Out:      cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	return mon.Run(ctx)
}

func runReport(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	report := output.ReadReport(DefaultFs, cfg.ReportFile)
	out := cmd.OutOrStdout()
	if report.GeneratedAt != "" {
		fmt.Fprintf(out, "Report generated %s for %s on %s\n", report.GeneratedAt, report.Root, report.Host)
	}
	monitor.PrintSummary(out, report.ChangeSet(), nil)

	if opts.cycles <= 0 || cfg.HistoryDB == "" {
		return nil
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return fmt.Errorf("open history %s: %w", cfg.HistoryDB, err)
	}
	defer store.Close()
	cycles, err := store.RecentCycles(opts.cycles)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nRecent cycles (%d):\n", len(cycles))
	for _, c := range cycles {
		fmt.Fprintf(out, " - %s  %s: %d modified, %d new, %d deleted\n",
			c.Timestamp.Format(time.RFC3339), c.Root, c.Modified, c.New, c.Deleted)
	}
	return nil
}

func handleSignals(cancelFunc context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	handleSignalEvent(cancelFunc, sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Shutting down...")
	cancelFunc()
}
