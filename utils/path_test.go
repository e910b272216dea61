package utils

import (
	"path/filepath"
	"testing"
)

func TestIsPathWithin(t *testing.T) {
	root := t.TempDir()
	child := filepath.Join(root, "a", "b.txt")
	outside := filepath.Join(filepath.Dir(root), "outside.txt")

	if !IsPathWithin(child, []string{root}) {
		t.Fatalf("expected %s to be within %s", child, root)
	}
	if IsPathWithin(outside, []string{root}) {
		t.Fatalf("did not expect %s to be within %s", outside, root)
	}
}

func TestRelativePath(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "data")
	rel, err := RelativePath(root, filepath.Join(root, "sub", "file.txt"))
	if err != nil {
		t.Fatalf("relative: %v", err)
	}
	if rel != "sub/file.txt" {
		t.Fatalf("unexpected relative path %q", rel)
	}
	if _, err := RelativePath(root, filepath.Join(string(filepath.Separator), "elsewhere", "x")); err == nil {
		t.Fatal("expected error for path outside root")
	}
	if got := AbsolutePath(root, "sub/file.txt"); got != filepath.Join(root, "sub", "file.txt") {
		t.Fatalf("unexpected absolute path %q", got)
	}
}
