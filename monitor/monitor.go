package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"fimon/alert"
	"fimon/config"
	"fimon/diag"
	"fimon/hasher"
	"fimon/history"
	"fimon/logger"
	"fimon/metadata"
	"fimon/output"
	"fimon/risk"
	"fimon/scanner"
	"fimon/snapshot"
	"fimon/systeminfo"
	"fimon/tracing"
	"fimon/utils"
)

// ConfigSource supplies the configuration re-read at the start of every
// cycle and signals when the file changes.
type ConfigSource interface {
	Current() *config.Config
	Reload() (*config.Config, error)
	Changed() <-chan struct{}
}

// ReportWriter persists and exports cycle results.
type ReportWriter interface {
	SetPaths(reportPath, riskReportPath string)
	WriteReport(root string, cs snapshot.ChangeSet, at time.Time) error
	WriteRiskReport(assessments map[string]risk.Assessment) error
	EmitCycle(metrics output.CycleMetrics, cs snapshot.ChangeSet, assessments map[string]risk.Assessment)
}

// HistoryStore records per-cycle churn and answers frequency queries.
type HistoryStore interface {
	risk.HistorySource
	RecordCycle(at time.Time, root string, changes []history.Change) (int64, error)
}

type scanFunc func(ctx context.Context, root string, opts scanner.Options) (*snapshot.Snapshot, scanner.Stats, error)

type Options struct {
	Root     string
	Baseline *snapshot.Snapshot
	Config   ConfigSource
	Writer   ReportWriter
	// History is optional; without it behavior risk is constant.
	History HistoryStore
	Host    systeminfo.HostInfo
	// Out receives the per-cycle summary. Nil disables printing.
	Out io.Writer
	Now func() time.Time
}

// Result describes one completed cycle.
type Result struct {
	Stats       scanner.Stats
	Changes     snapshot.ChangeSet
	Alerted     snapshot.ChangeSet
	Assessments map[string]risk.Assessment
	Notified    []string
}

// Monitor runs the scan, diff, score, report and alert cycle against a
// fixed baseline until its context is cancelled.
type Monitor struct {
	root     string
	baseline *snapshot.Snapshot
	config   ConfigSource
	writer   ReportWriter
	history  HistoryStore
	host     systeminfo.HostInfo
	out      io.Writer
	now      func() time.Time

	scan     scanFunc
	newEmail func(config.EmailConfig) alert.Notifier
	newAudio func(player, soundFile string) alert.Notifier

	dedup    *alert.Deduplicator
	audio    alert.Notifier
	audioKey string
	previous *snapshot.Snapshot
	watchdog *diag.Watchdog

	// compared is the baseline minus entries the current exclusions skip,
	// rebuilt when the exclusion set changes.
	compared    *snapshot.Snapshot
	comparedKey string

	state    atomic.Int32
	progress atomic.Int64
}

func New(opts Options) (*Monitor, error) {
	if opts.Baseline == nil {
		return nil, errors.New("monitor requires a baseline")
	}
	if opts.Config == nil {
		return nil, errors.New("monitor requires a configuration source")
	}
	if opts.Writer == nil {
		return nil, errors.New("monitor requires a report writer")
	}
	root, err := scanner.ValidateRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	cfg := opts.Config.Current()
	m := &Monitor{
		root:     root,
		baseline: opts.Baseline,
		config:   opts.Config,
		writer:   opts.Writer,
		history:  opts.History,
		host:     opts.Host,
		out:      opts.Out,
		now:      now,
		scan:     scanner.Scan,
		newEmail: func(c config.EmailConfig) alert.Notifier { return alert.NewEmailNotifier(c) },
		newAudio: func(player, soundFile string) alert.Notifier { return alert.NewAudioNotifier(player, soundFile) },
		dedup:    alert.NewDeduplicator(cfg.RenotifyOnEnable),
		previous: opts.Baseline,
	}
	if m.host.Hostname == "" {
		m.host.Hostname, _ = os.Hostname()
	}
	warnAlgorithmMismatch(opts.Baseline, cfg.HashAlgorithm)
	if cfg.Diag.SlowCycleSeconds > 0 || cfg.Diag.GoroutineLeak {
		diagOpts := diag.Options{
			Threshold:     time.Duration(cfg.Diag.SlowCycleSeconds) * time.Second,
			Dir:           cfg.Diag.Dir,
			GoroutineLeak: cfg.Diag.GoroutineLeak,
			Progress:      m.progress.Load,
			State:         func() string { return m.State().String() },
		}
		if cfg.Diag.FlightRecorder {
			diagOpts.FlightRecorder = tracing.WriteFlightRecorder
		}
		m.watchdog = diag.NewWatchdog(diagOpts)
	}
	return m, nil
}

// State returns the current cycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

func (m *Monitor) setState(s State) {
	m.state.Store(int32(s))
	m.progress.Add(1)
}

func (m *Monitor) enter(ctx context.Context, s State) {
	m.setState(s)
	tracing.Log(ctx, "state", s.String())
}

// Root returns the absolute monitored directory.
func (m *Monitor) Root() string { return m.root }

// Run executes cycles until ctx is cancelled. A failed cycle is logged and
// the loop continues after the usual interval.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stop()
	logger.Infof("Monitoring %s against a baseline of %d files", m.root, m.baseline.Len())

	for {
		if _, err := m.RunCycle(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("Cycle skipped: %v", err)
		}
		if ctx.Err() != nil {
			return nil
		}

		interval := time.Duration(m.config.Current().ScanInterval) * time.Second
		m.setState(Sleeping)
		if !m.sleep(ctx, interval) {
			return nil
		}
	}
}

// sleep waits for the interval, returning early on a configuration change.
// It reports false when ctx was cancelled.
func (m *Monitor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-m.config.Changed():
		logger.Info("Configuration changed; starting the next cycle early")
		return true
	}
}

func (m *Monitor) stop() {
	if m.audio != nil {
		if s, ok := m.audio.(alert.Stopper); ok {
			s.Stop()
		}
	}
	m.watchdog.Close()
	m.setState(Stopped)
	logger.Info("Monitoring stopped")
}

// RunCycle performs one full cycle. Errors are returned for a failed scan or
// cancellation; in both cases nothing is written.
func (m *Monitor) RunCycle(ctx context.Context) (Result, error) {
	ctx, endTask := tracing.StartTask(ctx, "fimon.cycle")
	defer endTask()

	start := m.now()
	cfg := m.reloadConfig()
	m.applyConfig(cfg)

	if m.watchdog != nil {
		m.watchdog.Start(ctx)
		defer m.watchdog.Stop()
	}

	m.enter(ctx, Scanning)
	endScan := tracing.StartRegion(ctx, "scan")
	exclusions := Exclusions(m.root, cfg)
	current, stats, err := m.scan(ctx, m.root, scanner.Options{
		ExcludePatterns: exclusions,
		Metadata: metadata.Options{
			HashAlgorithm: cfg.HashAlgorithm,
			DetectMime:    cfg.RiskScoring || cfg.AlertCriticalOnly,
			FuzzyHash:     cfg.FuzzyHash,
		},
		MaxIOPerSecond: cfg.MaxIOPerSecond,
		OnFile:         func() { m.progress.Add(1) },
		Now:            m.now,
	})
	endScan()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, fmt.Errorf("scan %s: %w", m.root, err)
	}

	m.enter(ctx, Diffing)
	trusted := m.comparedBaseline(exclusions)
	result := Result{Stats: stats, Changes: snapshot.Diff(trusted, current)}

	if cfg.RiskScoring || cfg.AlertCriticalOnly {
		m.enter(ctx, Scoring)
		result.Assessments = risk.Assess(m.scorer(cfg), m.root, result.Changes, trusted, current)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	m.enter(ctx, Reporting)
	at := m.now()
	if err := m.writer.WriteReport(m.root, result.Changes, at); err != nil {
		logger.Errorf("Failed to write report: %v", err)
	}
	if cfg.RiskScoring {
		if err := m.writer.WriteRiskReport(result.Assessments); err != nil {
			logger.Errorf("Failed to write risk report: %v", err)
		}
	}
	m.recordHistory(current, at)

	m.enter(ctx, Alerting)
	result.Alerted = result.Changes
	if cfg.AlertCriticalOnly {
		high := risk.HighRiskPaths(result.Assessments)
		result.Alerted = result.Changes.Filter(func(path string, _ snapshot.ChangeType) bool {
			return high[path]
		})
	}
	withheld := result.Changes.Total() - result.Alerted.Total()
	msg := alert.Render(cfg.Email.Subject, m.host.Label(), m.root, at, result.Alerted, withheld, result.Assessments)
	result.Notified = m.dedup.Evaluate(ctx, m.channels(cfg), msg)

	PrintSummary(m.out, result.Changes, result.Assessments)

	metrics := output.CycleMetrics{
		StartTime:    start.UTC().Format(time.RFC3339),
		EndTime:      m.now().UTC().Format(time.RFC3339),
		FilesScanned: stats.Files,
		Excluded:     stats.Excluded,
		Failed:       stats.Failed,
		Modified:     len(result.Changes.Modified),
		New:          len(result.Changes.New),
		Deleted:      len(result.Changes.Deleted),
		HighRisk:     len(risk.HighRiskPaths(result.Assessments)),
	}
	m.writer.EmitCycle(metrics, result.Changes, result.Assessments)
	logger.WithFields(map[string]interface{}{
		"files":     stats.Files,
		"modified":  metrics.Modified,
		"new":       metrics.New,
		"deleted":   metrics.Deleted,
		"high_risk": metrics.HighRisk,
		"notified":  result.Notified,
	}).Info("Cycle complete")
	return result, nil
}

// reloadConfig re-reads the configuration; a bad file keeps the last good
// one in effect.
func (m *Monitor) reloadConfig() *config.Config {
	cfg, err := m.config.Reload()
	if err != nil {
		logger.Warnf("Configuration reload failed, keeping previous settings: %v", err)
	}
	if cfg == nil {
		cfg = m.config.Current()
	}
	return cfg
}

func (m *Monitor) applyConfig(cfg *config.Config) {
	m.writer.SetPaths(cfg.ReportFile, cfg.RiskReportFile)
	m.dedup.SetRenotifyOnEnable(cfg.RenotifyOnEnable)

	key := cfg.SoundPlayer + "\x00" + cfg.SoundFile
	if m.audio == nil || key != m.audioKey {
		if s, ok := m.audio.(alert.Stopper); ok {
			s.Stop()
		}
		m.audio = m.newAudio(cfg.SoundPlayer, cfg.SoundFile)
		m.audioKey = key
	}
}

func (m *Monitor) channels(cfg *config.Config) []alert.Channel {
	return []alert.Channel{
		{Notifier: m.newEmail(cfg.Email), Enabled: cfg.EmailAlert},
		{Notifier: m.audio, Enabled: cfg.BeepOnChange},
	}
}

func (m *Monitor) scorer(cfg *config.Config) risk.Scorer {
	var behavior risk.BehaviorModel = risk.ConstantBehavior(cfg.Risk.Behavior.Default)
	if m.history != nil {
		window := time.Duration(cfg.Risk.Behavior.WindowDays) * 24 * time.Hour
		behavior = risk.NewHistoryBehavior(m.history, window, cfg.Risk.Behavior.Default)
	}
	return risk.NewRuleScorer(cfg.Risk, risk.WithBehavior(behavior), risk.WithClock(m.now))
}

// recordHistory stores the churn since the previous cycle, not the drift
// from the baseline, so a file that stays modified counts once.
func (m *Monitor) recordHistory(current *snapshot.Snapshot, at time.Time) {
	prev := m.previous
	m.previous = current
	if m.history == nil {
		return
	}
	churn := snapshot.Diff(prev, current)
	changes := make([]history.Change, 0, churn.Total())
	churn.Each(func(path string, kind snapshot.ChangeType) {
		changes = append(changes, history.Change{Path: utils.AbsolutePath(m.root, path), Type: string(kind)})
	})
	if _, err := m.history.RecordCycle(at, m.root, changes); err != nil {
		logger.Warnf("Failed to record change history: %v", err)
	}
}

// warnAlgorithmMismatch flags a baseline recorded with a different digest
// than the one configured, which would make every file read as modified.
func warnAlgorithmMismatch(baseline *snapshot.Snapshot, algorithm string) {
	want := hasher.DigestLength(algorithm)
	for _, path := range baseline.Paths() {
		rec, _ := baseline.Get(path)
		if rec.Hash == "" {
			continue
		}
		if len(rec.Hash) != want {
			logger.Warnf("Baseline digests are %d hex characters but %s produces %d; re-run `fimon init` after changing hash_algorithm",
				len(rec.Hash), algorithm, want)
		}
		return
	}
}

// comparedBaseline drops baseline entries that the current exclusions would
// keep out of a scan, so excluding a path while running does not report its
// files as deleted.
func (m *Monitor) comparedBaseline(exclusions []string) *snapshot.Snapshot {
	key := strings.Join(exclusions, "\x00")
	if m.compared != nil && key == m.comparedKey {
		return m.compared
	}
	matcher := utils.NewPatternMatcher(exclusions)
	kept := make([]snapshot.FileRecord, 0, m.baseline.Len())
	dropped := 0
	for _, path := range m.baseline.Paths() {
		if excludedBy(matcher, m.root, path) {
			dropped++
			continue
		}
		rec, _ := m.baseline.Get(path)
		kept = append(kept, rec)
	}
	if dropped > 0 {
		logger.WithField("excluded", dropped).Warn("Baseline entries are now excluded and no longer compared; re-run `fimon init` to refresh the baseline")
	}
	m.compared = snapshot.FromRecords(m.baseline.Root, m.baseline.TakenAt, kept)
	m.comparedKey = key
	return m.compared
}

// excludedBy mirrors the scanner: a file is skipped when it matches or when
// any directory from root down to its parent is pruned.
func excludedBy(matcher *utils.PatternMatcher, root, rel string) bool {
	if matcher.Len() == 0 {
		return false
	}
	abs := filepath.Join(root, filepath.FromSlash(rel))
	if matcher.ExcludeFile(abs) {
		return true
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if matcher.ExcludeDir(dir) {
			return true
		}
		if dir == root || dir == filepath.Dir(dir) {
			return false
		}
	}
}

// Exclusions extends the configured patterns with the files fimon itself
// writes when they live under root, so its own baseline, reports and
// history never show up as changes. Plain patterns are substrings, so a
// file's own path also covers SQLite journals next to it.
func Exclusions(root string, cfg *config.Config) []string {
	patterns := append([]string(nil), cfg.ExcludePatterns...)
	for _, p := range []string{cfg.BaselineFile, cfg.ReportFile, cfg.RiskReportFile, cfg.HistoryDB} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil || !utils.IsPathWithin(abs, []string{root}) {
			continue
		}
		tmp := filepath.Join(filepath.Dir(abs), "."+filepath.Base(abs)+".tmp-")
		patterns = append(patterns, abs, tmp)
	}
	return patterns
}
