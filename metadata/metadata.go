package metadata

import (
	"fmt"
	"io"
	"os"
	"time"

	"fimon/fuzzy"
	"fimon/hasher"
	"fimon/logger"
	"fimon/snapshot"
	"fimon/utils"

	"github.com/djherbis/times"
	"github.com/h2non/filetype"
)

// Options controls which fingerprint fields are collected.
type Options struct {
	HashAlgorithm string
	DetectMime    bool
	FuzzyHash     bool
	FuzzyMinSize  int64
	FuzzyMaxSize  int64
}

// Extractor computes FileRecords for files below a root.
type Extractor struct {
	opts  Options
	fuzzy fuzzy.Hasher
}

func NewExtractor(opts Options) *Extractor {
	if opts.HashAlgorithm == "" {
		opts.HashAlgorithm = hasher.DefaultAlgorithm
	}
	if opts.FuzzyMinSize <= 0 {
		opts.FuzzyMinSize = fuzzy.TLSHMinSize
	}
	if opts.FuzzyMaxSize <= 0 {
		opts.FuzzyMaxSize = fuzzy.TLSHMaxSize
	}
	e := &Extractor{opts: opts}
	if opts.FuzzyHash {
		if h, ok := fuzzy.Lookup(fuzzy.Default); ok {
			e.fuzzy = h
		} else {
			logger.Warnf("Fuzzy hasher %q unavailable (registered: %v); fuzzy digests disabled", fuzzy.Default, fuzzy.Available())
		}
	}
	return e
}

// Extract fingerprints the regular file at path. Only failures to stat or
// hash the content are returned; the optional fields are best effort.
func (e *Extractor) Extract(root, path string) (snapshot.FileRecord, error) {
	rel, err := utils.RelativePath(root, path)
	if err != nil {
		return snapshot.FileRecord{}, fmt.Errorf("relative path for %s: %w", path, err)
	}
	info, err := os.Lstat(path)
	if err != nil {
		return snapshot.FileRecord{}, err
	}
	if !info.Mode().IsRegular() {
		return snapshot.FileRecord{}, fmt.Errorf("%s is not a regular file", path)
	}

	digest, err := hasher.HashFile(path, e.opts.HashAlgorithm)
	if err != nil {
		return snapshot.FileRecord{}, fmt.Errorf("hash %s: %w", path, err)
	}

	rec := snapshot.FileRecord{
		Path:        rel,
		Hash:        digest,
		Size:        info.Size(),
		Permissions: fmt.Sprintf("%04o", info.Mode().Perm()),
		ModTime:     info.ModTime().UTC().Format(time.RFC3339),
		Owner:       fileOwner(path),
	}
	if ts, err := times.Lstat(path); err == nil && ts.HasChangeTime() {
		rec.ChangeTime = ts.ChangeTime().UTC().Format(time.RFC3339)
	}
	if e.opts.DetectMime {
		if mimeType, err := MimeType(path); err == nil {
			rec.MimeType = mimeType
		}
	}
	if e.fuzzy != nil && info.Size() >= e.opts.FuzzyMinSize && info.Size() <= e.opts.FuzzyMaxSize {
		if digest, err := e.fuzzy.HashFile(path); err == nil {
			rec.FuzzyHash = digest
		}
	}
	return rec, nil
}

// MimeType sniffs the file's magic bytes. Unrecognized content is "unknown".
func MimeType(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	buf := make([]byte, 261)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}

	kind, err := filetype.Match(buf[:n])
	if err != nil {
		return "", err
	}
	if kind == filetype.Unknown || kind.MIME.Value == "" {
		return "unknown", nil
	}
	return kind.MIME.Value, nil
}
