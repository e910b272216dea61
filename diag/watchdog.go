package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"fimon/logger"

	"github.com/spf13/afero"
)

const artifactTimeFormat = "20060102-150405.000"

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	// Threshold is how long the progress counter may stand still before a
	// stall is recorded. Zero disables stall detection.
	Threshold time.Duration
	Dir       string
	Fs        afero.Fs
	// GoroutineLeak writes a final goroutine profile on Close.
	GoroutineLeak bool
	Progress      func() int64
	State         func() string
	// FlightRecorder snapshots the execution trace to a path on the OS
	// filesystem.
	FlightRecorder func(path string) error
	Now            func() time.Time
	lookupProfile  func(name string) profileWriter
}

// Watchdog samples the monitor's progress counter while a cycle runs. When
// the counter stops advancing for longer than the threshold it writes a
// stall event, a goroutine profile and, if configured, a flight recorder
// trace. Dumps repeat at most once per threshold.
type Watchdog struct {
	opts Options

	mu      sync.Mutex
	tracker stallTracker
	probe   *probe
}

type probe struct {
	stop chan struct{}
	done chan struct{}
}

type stallTracker struct {
	progress  int64
	changedAt time.Time
	dumpedAt  time.Time
}

// observe records a sample and reports how long progress has stalled and
// whether that warrants a new dump.
func (s *stallTracker) observe(now time.Time, progress int64, threshold time.Duration) (time.Duration, bool) {
	if progress != s.progress || s.changedAt.IsZero() {
		s.progress = progress
		s.changedAt = now
		return 0, false
	}
	stalled := now.Sub(s.changedAt)
	if stalled < threshold {
		return stalled, false
	}
	if !s.dumpedAt.IsZero() && now.Sub(s.dumpedAt) < threshold {
		return stalled, false
	}
	s.dumpedAt = now
	return stalled, true
}

type stallEvent struct {
	Event       string `json:"event"`
	Timestamp   string `json:"timestamp"`
	State       string `json:"state,omitempty"`
	Progress    int64  `json:"progress_count"`
	ThresholdMs int64  `json:"threshold_ms"`
	StalledMs   int64  `json:"observed_stalled_ms"`
}

func NewWatchdog(opts Options) *Watchdog {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.lookupProfile == nil {
		opts.lookupProfile = func(name string) profileWriter {
			// A nil *pprof.Profile must not become a non-nil interface.
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	return &Watchdog{opts: opts}
}

// Start begins sampling for one cycle. It is a no-op without a threshold
// or progress source, or while already sampling.
func (w *Watchdog) Start(ctx context.Context) {
	if w == nil || w.opts.Threshold <= 0 || w.opts.Progress == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.probe != nil {
		return
	}
	w.tracker = stallTracker{progress: w.opts.Progress(), changedAt: w.opts.Now()}

	p := &probe{stop: make(chan struct{}), done: make(chan struct{})}
	w.probe = p
	go w.sample(ctx, p, sampleInterval(w.opts.Threshold))
}

func sampleInterval(threshold time.Duration) time.Duration {
	interval := threshold / 2
	switch {
	case interval <= 0:
		return 250 * time.Millisecond
	case interval > 2*time.Second:
		return 2 * time.Second
	}
	return interval
}

func (w *Watchdog) sample(ctx context.Context, p *probe, interval time.Duration) {
	defer close(p.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			w.check(w.opts.Now())
		}
	}
}

// Stop ends sampling for the current cycle. Start may be called again.
func (w *Watchdog) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	p := w.probe
	w.probe = nil
	w.mu.Unlock()
	if p == nil {
		return
	}
	close(p.stop)
	<-p.done
}

// Close stops sampling and writes the leak-check goroutine profile when
// enabled.
func (w *Watchdog) Close() {
	if w == nil {
		return
	}
	w.Stop()
	if !w.opts.GoroutineLeak {
		return
	}
	if _, err := w.writeProfile("goroutine", 2); err != nil {
		logger.Warnf("Goroutine leak profile failed: %v", err)
	}
}

func (w *Watchdog) check(now time.Time) {
	if w.opts.Progress == nil || w.opts.Threshold <= 0 {
		return
	}
	progress := w.opts.Progress()
	w.mu.Lock()
	stalled, dump := w.tracker.observe(now, progress, w.opts.Threshold)
	w.mu.Unlock()
	if !dump {
		return
	}
	if err := w.dump(now, progress, stalled); err != nil {
		logger.Warnf("Stall diagnostics failed: %v", err)
	}
}

func (w *Watchdog) dump(now time.Time, progress int64, stalled time.Duration) error {
	if err := w.opts.Fs.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return err
	}
	stamp := now.UTC().Format(artifactTimeFormat)
	event := stallEvent{
		Event:       "slow_cycle_threshold_exceeded",
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		Progress:    progress,
		ThresholdMs: w.opts.Threshold.Milliseconds(),
		StalledMs:   stalled.Milliseconds(),
	}
	if w.opts.State != nil {
		event.State = w.opts.State()
	}
	data, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	eventPath := filepath.Join(w.opts.Dir, "fimon-slow-cycle-"+stamp+".json")
	if err := afero.WriteFile(w.opts.Fs, eventPath, data, 0o600); err != nil {
		return err
	}
	logger.WithFields(map[string]interface{}{
		"state":   event.State,
		"stalled": stalled.Round(time.Millisecond).String(),
		"event":   eventPath,
	}).Warn("Cycle stopped making progress")

	if _, err := w.writeProfile("goroutine", 1); err != nil {
		logger.Warnf("Goroutine profile failed: %v", err)
	}
	if w.opts.FlightRecorder != nil {
		tracePath := filepath.Join(w.opts.Dir, "fimon-flight-"+stamp+".out")
		if err := w.opts.FlightRecorder(tracePath); err != nil {
			logger.Warnf("Flight recorder snapshot failed: %v", err)
		}
	}
	return nil
}

func (w *Watchdog) writeProfile(name string, debug int) (string, error) {
	profile := w.opts.lookupProfile(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	if err := w.opts.Fs.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return "", err
	}
	stamp := w.opts.Now().UTC().Format(artifactTimeFormat)
	path := filepath.Join(w.opts.Dir, fmt.Sprintf("fimon-%s-profile-%s.pprof", name, stamp))
	f, err := w.opts.Fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}
