package alert

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"fimon/logger"
)

// AudioNotifier plays a sound file through an external player.
type AudioNotifier struct {
	player    string
	soundFile string

	mu  sync.Mutex
	cmd *exec.Cmd

	lookPath func(string) (string, error)
}

func NewAudioNotifier(player, soundFile string) *AudioNotifier {
	if player == "" {
		player = "aplay"
	}
	return &AudioNotifier{player: player, soundFile: soundFile, lookPath: exec.LookPath}
}

func (a *AudioNotifier) Name() string { return "audio" }

// Notify starts the player and returns without waiting for playback. A
// missing sound file or player turns the call into a no-op.
func (a *AudioNotifier) Notify(ctx context.Context, msg Message) error {
	if a.soundFile == "" {
		logger.Debug("No sound file configured; skipping audio alert")
		return nil
	}
	if _, err := os.Stat(a.soundFile); err != nil {
		logger.Debugf("Sound file unavailable: %v", err)
		return nil
	}
	path, err := a.lookPath(a.player)
	if err != nil {
		logger.Debugf("Sound player %s not found", a.player)
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	cmd := exec.Command(path, a.soundFile)
	if err := cmd.Start(); err != nil {
		return err
	}
	a.cmd = cmd
	go func() {
		_ = cmd.Wait()
		a.mu.Lock()
		if a.cmd == cmd {
			a.cmd = nil
		}
		a.mu.Unlock()
	}()
	return nil
}

// Stop interrupts playback that is still running.
func (a *AudioNotifier) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *AudioNotifier) stopLocked() {
	if a.cmd != nil && a.cmd.Process != nil {
		_ = a.cmd.Process.Kill()
	}
	a.cmd = nil
}
