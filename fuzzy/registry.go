package fuzzy

import (
	"sort"
	"strings"
	"sync"
)

// Default is the algorithm used for rewrite detection.
const Default = "tlsh"

// Hasher computes similarity digests that survive small content edits.
type Hasher interface {
	Name() string
	HashFile(path string) (string, error)
	// Distance compares two digests produced by HashFile. Zero means identical.
	Distance(a, b string) (int, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]Hasher{}
)

// Register adds a fuzzy hasher, replacing any with the same name.
func Register(hasher Hasher) {
	if hasher == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(hasher.Name())] = hasher
}

// Lookup returns a registered hasher by case-insensitive name.
func Lookup(name string) (Hasher, bool) {
	mu.RLock()
	defer mu.RUnlock()
	hasher, ok := registry[strings.ToLower(name)]
	return hasher, ok
}

// Available returns the sorted names of registered hashers.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Divergence maps the distance between two digests onto [0,1], where 1
// means at least maxDistance apart. Missing or unparsable digests yield 0.
func Divergence(h Hasher, a, b string, maxDistance int) float64 {
	if h == nil || maxDistance <= 0 || a == "" || b == "" {
		return 0
	}
	d, err := h.Distance(a, b)
	if err != nil || d <= 0 {
		return 0
	}
	if d >= maxDistance {
		return 1
	}
	return float64(d) / float64(maxDistance)
}
