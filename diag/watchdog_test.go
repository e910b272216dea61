package diag

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fimon/logger"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Init("error")
}

type fakeProfile string

func (f fakeProfile) WriteTo(w io.Writer, _ int) error {
	_, err := io.WriteString(w, string(f))
	return err
}

func goroutineOnly(name string) profileWriter {
	if name == "goroutine" {
		return fakeProfile("goroutine-profile")
	}
	return nil
}

var epoch = time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)

func listDir(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStallWritesArtifacts(t *testing.T) {
	fs := afero.NewMemMapFs()
	var traced string
	w := NewWatchdog(Options{
		Threshold: 2 * time.Second,
		Dir:       "/diag",
		Fs:        fs,
		Progress:  func() int64 { return 42 },
		State:     func() string { return "scanning" },
		FlightRecorder: func(path string) error {
			traced = path
			return nil
		},
		Now:           func() time.Time { return epoch },
		lookupProfile: goroutineOnly,
	})
	w.tracker = stallTracker{progress: 42, changedAt: epoch}

	w.check(epoch.Add(3 * time.Second))

	names := listDir(t, fs, "/diag")
	var eventName string
	var sawProfile bool
	for _, name := range names {
		if strings.HasPrefix(name, "fimon-slow-cycle-") {
			eventName = name
		}
		if strings.HasPrefix(name, "fimon-goroutine-profile-") {
			sawProfile = true
		}
	}
	require.NotEmpty(t, eventName, "expected a stall event in %v", names)
	assert.True(t, sawProfile, "expected a goroutine profile in %v", names)
	assert.True(t, strings.HasPrefix(traced, "/diag/fimon-flight-"), "flight recorder path %q", traced)

	data, err := afero.ReadFile(fs, "/diag/"+eventName)
	require.NoError(t, err)
	var event stallEvent
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, "scanning", event.State)
	assert.Equal(t, int64(3000), event.StalledMs)
	assert.Equal(t, int64(42), event.Progress)
}

func TestStallDumpsAtMostOncePerThreshold(t *testing.T) {
	var s stallTracker
	_, dump := s.observe(epoch, 7, time.Second)
	assert.False(t, dump)

	stalled, dump := s.observe(epoch.Add(1500*time.Millisecond), 7, time.Second)
	assert.True(t, dump)
	assert.Equal(t, 1500*time.Millisecond, stalled)

	_, dump = s.observe(epoch.Add(2*time.Second), 7, time.Second)
	assert.False(t, dump, "second dump inside the threshold")

	_, dump = s.observe(epoch.Add(3*time.Second), 7, time.Second)
	assert.True(t, dump)

	_, dump = s.observe(epoch.Add(10*time.Second), 8, time.Second)
	assert.False(t, dump, "progress resets the stall")
}

func TestNoArtifactsWhileProgressing(t *testing.T) {
	fs := afero.NewMemMapFs()
	var progress int64
	w := NewWatchdog(Options{
		Threshold:     time.Second,
		Dir:           "/diag",
		Fs:            fs,
		Progress:      func() int64 { progress++; return progress },
		Now:           func() time.Time { return epoch },
		lookupProfile: goroutineOnly,
	})
	for i := 1; i <= 5; i++ {
		w.check(epoch.Add(time.Duration(i) * time.Second))
	}
	assert.Empty(t, listDir(t, fs, "/diag"))
}

func TestStartStopRestart(t *testing.T) {
	var progress atomic.Int64
	w := NewWatchdog(Options{
		Threshold:     10 * time.Millisecond,
		Fs:            afero.NewMemMapFs(),
		Progress:      progress.Load,
		lookupProfile: goroutineOnly,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	w.Start(ctx)
	w.Stop()
	w.Stop()
	w.Start(ctx)
	w.Close()
	assert.Nil(t, w.probe)
}

func TestStartWithoutThresholdIsNoop(t *testing.T) {
	w := NewWatchdog(Options{Progress: func() int64 { return 0 }})
	w.Start(context.Background())
	assert.Nil(t, w.probe)
	w.Close()

	var nilWatchdog *Watchdog
	nilWatchdog.Start(context.Background())
	nilWatchdog.Stop()
	nilWatchdog.Close()
}

func TestWriteProfile(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWatchdog(Options{
		Dir:           "/diag",
		Fs:            fs,
		Now:           func() time.Time { return epoch },
		lookupProfile: goroutineOnly,
	})

	path, err := w.writeProfile("goroutine", 0)
	require.NoError(t, err)
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "goroutine-profile", string(data))

	_, err = w.writeProfile("heap-missing", 0)
	assert.Error(t, err)
}

func TestCloseWritesLeakProfileWhenEnabled(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWatchdog(Options{
		Dir:           "/diag",
		Fs:            fs,
		GoroutineLeak: true,
		Now:           func() time.Time { return epoch },
		lookupProfile: goroutineOnly,
	})
	w.Close()

	matches, err := afero.Glob(fs, "/diag/fimon-goroutine-profile-*.pprof")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestDefaultProfileLookup(t *testing.T) {
	w := NewWatchdog(Options{})
	assert.NotNil(t, w.opts.lookupProfile("goroutine"))
	assert.Nil(t, w.opts.lookupProfile("no-such-profile"))
}
