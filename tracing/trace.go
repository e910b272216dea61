//go:build trace

package tracing

import (
	"context"
	"fmt"
	"os"
	"runtime/trace"
	"sync"
)

var (
	traceMu   sync.Mutex
	traceFile *os.File
)

// Start writes a full execution trace of the monitor to path. Only one
// trace can be active at a time.
func Start(path string) error {
	traceMu.Lock()
	defer traceMu.Unlock()
	if traceFile != nil {
		return fmt.Errorf("trace already writing to %s", traceFile.Name())
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	traceFile = f
	return nil
}

// Stop ends tracing and closes the trace file.
func Stop() {
	traceMu.Lock()
	defer traceMu.Unlock()
	if traceFile == nil {
		return
	}
	trace.Stop()
	traceFile.Close()
	traceFile = nil
}

// StartTask begins a trace task, one per monitoring cycle.
func StartTask(ctx context.Context, name string) (context.Context, func()) {
	ctx, task := trace.NewTask(ctx, name)
	return ctx, task.End
}

// StartRegion marks a region of the current goroutine's work.
func StartRegion(ctx context.Context, name string) func() {
	region := trace.StartRegion(ctx, name)
	return region.End
}

// Log records an annotation such as a state transition.
func Log(ctx context.Context, category, message string) {
	trace.Log(ctx, category, message)
}
