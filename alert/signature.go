package alert

import (
	"sort"

	"fimon/snapshot"

	"github.com/cespare/xxhash/v2"
)

// Signature identifies a change set by its three path sets. Order inside a
// set is irrelevant; two signatures are equal only when all three sets are.
type Signature struct {
	modified []string
	created  []string
	deleted  []string
	digest   uint64
}

// NewSignature builds the signature of a change set.
func NewSignature(cs snapshot.ChangeSet) Signature {
	s := Signature{
		modified: normalizeSet(cs.Modified),
		created:  normalizeSet(cs.New),
		deleted:  normalizeSet(cs.Deleted),
	}
	d := xxhash.New()
	for i, set := range [][]string{s.modified, s.created, s.deleted} {
		_, _ = d.Write([]byte{byte('0' + i)})
		for _, p := range set {
			_, _ = d.WriteString(p)
			_, _ = d.Write([]byte{0})
		}
	}
	s.digest = d.Sum64()
	return s
}

func normalizeSet(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	n := 0
	for i, p := range out {
		if i > 0 && p == out[n-1] {
			continue
		}
		out[n] = p
		n++
	}
	return out[:n]
}

// Empty reports whether the signature describes an all-clear state.
func (s Signature) Empty() bool {
	return len(s.modified) == 0 && len(s.created) == 0 && len(s.deleted) == 0
}

// Digest is a compact fingerprint of the signature, suitable for logging.
func (s Signature) Digest() uint64 {
	if s.Empty() {
		return 0
	}
	return s.digest
}

// Equal compares by set equality. The digest is only a fast rejection.
func (s Signature) Equal(o Signature) bool {
	if s.Empty() && o.Empty() {
		return true
	}
	if s.digest != o.digest {
		return false
	}
	return equalSets(s.modified, o.modified) && equalSets(s.created, o.created) && equalSets(s.deleted, o.deleted)
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
