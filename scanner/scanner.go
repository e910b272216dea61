package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fimon/logger"
	"fimon/metadata"
	"fimon/snapshot"
	"fimon/utils"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// ErrInvalidRoot is returned when the scan root is not a readable directory.
var ErrInvalidRoot = errors.New("invalid root directory")

type Options struct {
	ExcludePatterns []string
	Metadata        metadata.Options
	// MaxIOPerSecond caps how many files are fingerprinted per second. Zero
	// disables the limit.
	MaxIOPerSecond int
	ShowProgress   bool
	// OnFile is called after every file visited, fingerprinted or not.
	OnFile func()
	Now    func() time.Time
}

// Stats summarizes one scan.
type Stats struct {
	Files    int
	Excluded int
	Failed   int
}

// ValidateRoot resolves root to an absolute path and checks that it is a
// directory the process can read.
func ValidateRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, abs)
	}
	dir, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	defer dir.Close()
	if _, err := dir.ReadDir(1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	return abs, nil
}

// Scan walks root and fingerprints every regular file that is not excluded.
// Files that cannot be read are logged and left out; only an invalid root or
// cancellation fails the scan.
func Scan(ctx context.Context, root string, opts Options) (*snapshot.Snapshot, Stats, error) {
	var stats Stats
	absRoot, err := ValidateRoot(root)
	if err != nil {
		return nil, stats, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	snap := snapshot.New(absRoot, now().UTC())
	matcher := utils.NewPatternMatcher(opts.ExcludePatterns)
	extractor := metadata.NewExtractor(opts.Metadata)

	var limiter *rate.Limiter
	if opts.MaxIOPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxIOPerSecond), opts.MaxIOPerSecond)
	}

	var bar *progressbar.ProgressBar
	if opts.ShowProgress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Fingerprinting files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetVisibility(progressVisible()),
			progressbar.OptionFullWidth(),
		)
		defer func() {
			_ = bar.Finish()
		}()
	}

	err = defaultWalker.Walk(ctx, absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warnf("Failed to access %s: %v", path, err)
			return nil
		}
		if d == nil {
			return nil
		}
		if d.IsDir() {
			if matcher.ExcludeDir(path) {
				logger.Debugf("Pruning excluded directory %s", path)
				stats.Excluded++
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if opts.OnFile != nil {
			defer opts.OnFile()
		}
		if matcher.ExcludeFile(path) {
			stats.Excluded++
			return nil
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		rec, err := extractor.Extract(absRoot, path)
		if err != nil {
			logger.Warnf("Skipping %s: %v", path, err)
			stats.Failed++
			return nil
		}
		snap.Files[rec.Path] = rec
		stats.Files++
		if bar != nil {
			_ = bar.Add(1)
		}
		return nil
	})
	if err != nil {
		return nil, stats, err
	}
	return snap, stats, nil
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("FIMON_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
