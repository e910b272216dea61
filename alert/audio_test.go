package alert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAudioNotifierMissingSoundFileIsNoop(t *testing.T) {
	a := NewAudioNotifier("aplay", filepath.Join(t.TempDir(), "missing.wav"))
	a.lookPath = func(string) (string, error) {
		t.Fatal("player should not be looked up without a sound file")
		return "", nil
	}
	assert.NoError(t, a.Notify(context.Background(), changed("a")))
	assert.NoError(t, NewAudioNotifier("", "").Notify(context.Background(), changed("a")))
}

func TestAudioNotifierMissingPlayerIsNoop(t *testing.T) {
	sound := filepath.Join(t.TempDir(), "alert.wav")
	require.NoError(t, os.WriteFile(sound, []byte("RIFF"), 0o644))
	a := NewAudioNotifier("no-such-player", sound)
	a.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	assert.NoError(t, a.Notify(context.Background(), changed("a")))
	assert.Nil(t, a.cmd)
}

func TestAudioNotifierStartsAndStops(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX sleep binary")
	}
	sound := filepath.Join(t.TempDir(), "alert.wav")
	require.NoError(t, os.WriteFile(sound, []byte("RIFF"), 0o644))

	// sleep treats the sound file as an invalid duration and exits; the
	// player only has to start.
	a := NewAudioNotifier("sleep", sound)
	require.NoError(t, a.Notify(context.Background(), changed("a")))
	a.Stop()
	a.mu.Lock()
	defer a.mu.Unlock()
	assert.Nil(t, a.cmd)
}
