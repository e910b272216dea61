package snapshot

import (
	"sort"
	"time"
)

// FileRecord fingerprints one regular file at scan time. Path is relative to
// the scanned root and slash separated.
type FileRecord struct {
	Path        string `json:"-"`
	Hash        string `json:"hash"`
	Size        int64  `json:"size"`
	Permissions string `json:"permissions"`
	ModTime     string `json:"mtime,omitempty"`
	ChangeTime  string `json:"ctime,omitempty"`
	Owner       string `json:"owner,omitempty"`
	MimeType    string `json:"mime_type,omitempty"`
	FuzzyHash   string `json:"fuzzy_hash,omitempty"`
}

// Snapshot maps relative paths to their records at one instant.
type Snapshot struct {
	Root    string
	TakenAt time.Time
	Files   map[string]FileRecord
}

// New returns an empty snapshot for root.
func New(root string, takenAt time.Time) *Snapshot {
	return &Snapshot{
		Root:    root,
		TakenAt: takenAt,
		Files:   make(map[string]FileRecord),
	}
}

// FromRecords builds a snapshot keyed by each record's Path. Later
// duplicates replace earlier ones.
func FromRecords(root string, takenAt time.Time, records []FileRecord) *Snapshot {
	s := New(root, takenAt)
	for _, rec := range records {
		s.Files[rec.Path] = rec
	}
	return s
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Files)
}

// Get returns the record stored for path.
func (s *Snapshot) Get(path string) (FileRecord, bool) {
	if s == nil {
		return FileRecord{}, false
	}
	rec, ok := s.Files[path]
	return rec, ok
}

// Paths returns the snapshot keys in sorted order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.Files))
	for path := range s.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
