package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Loader re-reads the configuration file on demand and signals when the file
// changes on disk. A reload that fails keeps the last good configuration.
type Loader struct {
	path    string
	mu      sync.RWMutex
	current *Config
	// overrides are applied after every load, e.g. explicit CLI flags.
	overrides func(*Config)

	watcher *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewLoader performs the initial load. Unlike Reload, a failure here is
// returned to the caller.
func NewLoader(path string, overrides func(*Config)) (*Loader, error) {
	l := &Loader{
		path:      path,
		overrides: overrides,
		changed:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

func (l *Loader) load() (*Config, error) {
	cfg := Default()
	if l.path != "" {
		if err := cfg.loadFromFile(l.path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvOverrides()
	if l.overrides != nil {
		l.overrides(cfg)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Reload reads the file again. On error the previous configuration stays in
// effect and is returned together with the error.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		return l.current, err
	}
	l.current = cfg
	return cfg, nil
}

// Watch starts an fsnotify watch on the directory holding the config file.
// Watching the directory survives editors that replace the file.
func (l *Loader) Watch() error {
	if l.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	l.watcher = watcher
	go l.watchLoop()
	return nil
}

func (l *Loader) watchLoop() {
	var debounce *time.Timer
	base := filepath.Base(l.path)
	for {
		select {
		case <-l.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, l.notify)
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (l *Loader) notify() {
	select {
	case l.changed <- struct{}{}:
	default:
	}
}

// Changed delivers a value after the config file was modified. At most one
// signal is buffered.
func (l *Loader) Changed() <-chan struct{} {
	return l.changed
}

// Close stops watching. It is safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
	})
	return err
}
