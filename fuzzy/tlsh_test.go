package fuzzy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSample(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestTLSHRegistered(t *testing.T) {
	h, ok := Lookup("TLSH")
	if !ok {
		t.Fatal("tlsh not registered")
	}
	if h.Name() != "tlsh" {
		t.Fatalf("unexpected name %q", h.Name())
	}
	if got := Available(); len(got) == 0 || got[0] != "tlsh" {
		t.Fatalf("unexpected available list %v", got)
	}
}

func TestTLSHDistance(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("root:x:0:0:root:/root:/bin/bash line ")
		b.WriteString(strings.Repeat(string(rune('a'+i%26)), i%7+1))
		b.WriteString("\n")
	}
	original := b.String()
	edited := strings.Replace(original, "/bin/bash", "/bin/zsh", 3)

	h := TLSHHasher{}
	left, err := h.HashFile(writeSample(t, "a.txt", original))
	if err != nil {
		t.Fatalf("hash original: %v", err)
	}
	right, err := h.HashFile(writeSample(t, "b.txt", edited))
	if err != nil {
		t.Fatalf("hash edited: %v", err)
	}

	same, err := h.Distance(left, left)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if same != 0 {
		t.Fatalf("expected zero self distance, got %d", same)
	}
	diff, err := h.Distance(left, right)
	if err != nil {
		t.Fatalf("distance: %v", err)
	}
	if diff <= 0 {
		t.Fatalf("expected positive distance for edited content, got %d", diff)
	}
	if _, err := h.Distance("not-a-digest", right); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTLSHRejectsSmallFiles(t *testing.T) {
	if _, err := (TLSHHasher{}).HashFile(writeSample(t, "tiny.txt", "short")); err == nil {
		t.Fatal("expected size error for tiny file")
	}
}

type fixedDistance int

func (fixedDistance) Name() string { return "fixed" }
func (fixedDistance) HashFile(string) (string, error) { return "", nil }
func (d fixedDistance) Distance(_, _ string) (int, error) { return int(d), nil }

func TestDivergence(t *testing.T) {
	cases := []struct {
		name string
		h    Hasher
		a, b string
		max  int
		want float64
	}{
		{"nil hasher", nil, "a", "b", 100, 0},
		{"missing digest", fixedDistance(50), "", "b", 100, 0},
		{"disabled", fixedDistance(50), "a", "b", 0, 0},
		{"partial", fixedDistance(50), "a", "b", 200, 0.25},
		{"clamped", fixedDistance(500), "a", "b", 200, 1},
	}
	for _, tc := range cases {
		if got := Divergence(tc.h, tc.a, tc.b, tc.max); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
