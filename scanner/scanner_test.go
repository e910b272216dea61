package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"testing"

	"fimon/logger"
	"fimon/metadata"
)

func init() {
	logger.Init("error")
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestScanCollectsEveryFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.txt":         "alpha",
		"etc/conf.ini":  "[x]",
		"deep/er/b.bin": "bravo",
	})

	var visited int
	snap, stats, err := Scan(context.Background(), root, Options{OnFile: func() { visited++ }})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"a.txt", "deep/er/b.bin", "etc/conf.ini"}
	if got := snap.Paths(); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if stats.Files != 3 || visited != 3 {
		t.Fatalf("stats = %+v visited = %d", stats, visited)
	}
	rec, _ := snap.Get("a.txt")
	if rec.Size != 5 || rec.Hash == "" || rec.Permissions != "0644" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestScanPrunesExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"cache/x":       "1",
		"keep/cache.go": "2",
		"keep/y.log":    "3",
	})

	snap, stats, err := Scan(context.Background(), root, Options{ExcludePatterns: []string{"/cache/", "glob:*.log"}})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got := snap.Paths(); !reflect.DeepEqual(got, []string{"keep/cache.go"}) {
		t.Fatalf("paths = %v", got)
	}
	if stats.Excluded != 2 {
		t.Fatalf("expected one pruned dir and one excluded file, got %+v", stats)
	}
}

func TestScanSkipsNonRegularFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"target": "data"})
	if err := os.Symlink(filepath.Join(root, "target"), filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	snap, _, err := Scan(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	paths := snap.Paths()
	sort.Strings(paths)
	if !reflect.DeepEqual(paths, []string{"target"}) {
		t.Fatalf("paths = %v", paths)
	}
}

func TestScanUnreadableFileIsSkipped(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"ok": "1", "locked": "2"})
	if err := os.Chmod(filepath.Join(root, "locked"), 0); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	snap, stats, err := Scan(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !reflect.DeepEqual(snap.Paths(), []string{"ok"}) || stats.Failed != 1 {
		t.Fatalf("paths = %v stats = %+v", snap.Paths(), stats)
	}
}

func TestScanInvalidRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, root := range []string{"", file, filepath.Join(t.TempDir(), "missing")} {
		if _, _, err := Scan(context.Background(), root, Options{}); !errors.Is(err, ErrInvalidRoot) {
			t.Errorf("root %q: expected ErrInvalidRoot, got %v", root, err)
		}
	}
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := Scan(ctx, root, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestScanWithRateLimitAndHashAlgorithm(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "1", "b": "2"})
	snap, _, err := Scan(context.Background(), root, Options{
		MaxIOPerSecond: 1000,
		Metadata:       metadata.Options{HashAlgorithm: "sha512"},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	rec, _ := snap.Get("a")
	if len(rec.Hash) != 128 {
		t.Fatalf("expected sha512 digest, got %q", rec.Hash)
	}
}
