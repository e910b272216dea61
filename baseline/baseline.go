package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"fimon/snapshot"
	"fimon/utils"

	"github.com/spf13/afero"
)

// ErrBaselineMissing is returned by Load when no baseline has been recorded.
var ErrBaselineMissing = errors.New("baseline not found")

// Store persists the trusted snapshot as a JSON object keyed by relative
// path.
type Store struct {
	fs   afero.Fs
	path string
}

func NewStore(fs afero.Fs, path string) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Store{fs: fs, path: path}
}

func (s *Store) Path() string { return s.path }

// Exists reports whether a baseline file is present.
func (s *Store) Exists() bool {
	ok, err := afero.Exists(s.fs, s.path)
	return err == nil && ok
}

// Load reads the baseline. The returned snapshot has no root; callers set
// it to the directory being monitored.
func (s *Store) Load() (*snapshot.Snapshot, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrBaselineMissing, s.path)
		}
		return nil, fmt.Errorf("read baseline: %w", err)
	}
	var files map[string]snapshot.FileRecord
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, fmt.Errorf("decode baseline %s: %w", s.path, err)
	}

	var takenAt time.Time
	if info, err := s.fs.Stat(s.path); err == nil {
		takenAt = info.ModTime().UTC()
	}
	records := make([]snapshot.FileRecord, 0, len(files))
	for path, rec := range files {
		rec.Path = path
		records = append(records, rec)
	}
	return snapshot.FromRecords("", takenAt, records), nil
}

// Save replaces the baseline atomically.
func (s *Store) Save(snap *snapshot.Snapshot) error {
	files := map[string]snapshot.FileRecord{}
	if snap != nil {
		files = snap.Files
	}
	data, err := json.MarshalIndent(files, "", "    ")
	if err != nil {
		return fmt.Errorf("encode baseline: %w", err)
	}
	if err := utils.WriteFileAtomic(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("write baseline: %w", err)
	}
	return nil
}
