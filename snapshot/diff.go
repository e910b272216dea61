package snapshot

import "sort"

type ChangeType string

const (
	Modified ChangeType = "modified"
	Created  ChangeType = "new"
	Deleted  ChangeType = "deleted"
)

// ChangeSet partitions the paths that differ between a baseline and a
// current snapshot. The three slices are sorted and pairwise disjoint.
type ChangeSet struct {
	Modified []string `json:"modified"`
	New      []string `json:"new"`
	Deleted  []string `json:"deleted"`
}

// Empty reports whether no change was detected.
func (c ChangeSet) Empty() bool {
	return len(c.Modified) == 0 && len(c.New) == 0 && len(c.Deleted) == 0
}

// Total is the number of changed paths.
func (c ChangeSet) Total() int {
	return len(c.Modified) + len(c.New) + len(c.Deleted)
}

// Each calls fn for every change, modified first, then new, then deleted.
func (c ChangeSet) Each(fn func(path string, kind ChangeType)) {
	for _, p := range c.Modified {
		fn(p, Modified)
	}
	for _, p := range c.New {
		fn(p, Created)
	}
	for _, p := range c.Deleted {
		fn(p, Deleted)
	}
}

// Filter keeps only the changes for which keep returns true.
func (c ChangeSet) Filter(keep func(path string, kind ChangeType) bool) ChangeSet {
	out := ChangeSet{Modified: []string{}, New: []string{}, Deleted: []string{}}
	c.Each(func(path string, kind ChangeType) {
		if !keep(path, kind) {
			return
		}
		switch kind {
		case Modified:
			out.Modified = append(out.Modified, path)
		case Created:
			out.New = append(out.New, path)
		case Deleted:
			out.Deleted = append(out.Deleted, path)
		}
	})
	return out
}

// Diff compares current against baseline. Only the content hash decides
// modification; size, mtime or permission drift alone is ignored.
func Diff(baseline, current *Snapshot) ChangeSet {
	cs := ChangeSet{Modified: []string{}, New: []string{}, Deleted: []string{}}

	var base, cur map[string]FileRecord
	if baseline != nil {
		base = baseline.Files
	}
	if current != nil {
		cur = current.Files
	}

	for path, rec := range base {
		now, ok := cur[path]
		if !ok {
			cs.Deleted = append(cs.Deleted, path)
			continue
		}
		if now.Hash != rec.Hash {
			cs.Modified = append(cs.Modified, path)
		}
	}
	for path := range cur {
		if _, ok := base[path]; !ok {
			cs.New = append(cs.New, path)
		}
	}

	sort.Strings(cs.Modified)
	sort.Strings(cs.New)
	sort.Strings(cs.Deleted)
	return cs
}
