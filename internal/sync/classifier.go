package sync

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Diff classifies one side's current snapshot against its recorded baseline.
// A path appears in exactly one bucket. Deleted entries carry the baseline
// fingerprint (the file no longer exists on disk); all other buckets carry
// the current one.
type Diff struct {
	Added     map[string]*FileFingerprint
	Modified  map[string]*FileFingerprint
	Deleted   map[string]*FileFingerprint
	Unchanged map[string]*FileFingerprint
}

func newDiff() *Diff {
	return &Diff{
		Added:     make(map[string]*FileFingerprint),
		Modified:  make(map[string]*FileFingerprint),
		Deleted:   make(map[string]*FileFingerprint),
		Unchanged: make(map[string]*FileFingerprint),
	}
}

// Classify buckets every path seen in current or baseline. A nil baseline
// means "first run": everything observed classifies as Added and nothing as
// Deleted.
func Classify(current TreeSnapshot, baseline TreeSnapshot) *Diff {
	diff := newDiff()

	if baseline == nil {
		for path, fp := range current {
			diff.Added[path] = fp
		}
		return diff
	}

	paths := mapset.NewThreadUnsafeSet[string]()
	for path := range current {
		paths.Add(path)
	}
	for path := range baseline {
		paths.Add(path)
	}

	for path := range paths.Iter() {
		cur, inCurrent := current[path]
		base, inBaseline := baseline[path]

		switch {
		case inCurrent && !inBaseline:
			diff.Added[path] = cur
		case !inCurrent && inBaseline:
			diff.Deleted[path] = base
		case cur.Equal(base):
			diff.Unchanged[path] = cur
		default:
			diff.Modified[path] = cur
		}
	}

	return diff
}

// Changed reports whether the side diverged from its baseline at all.
func (d *Diff) Changed() bool {
	return len(d.Added) > 0 || len(d.Modified) > 0 || len(d.Deleted) > 0
}

// ChangedPaths returns the set of paths in Added, Modified or Deleted.
func (d *Diff) ChangedPaths() mapset.Set[string] {
	paths := mapset.NewThreadUnsafeSet[string]()
	for path := range d.Added {
		paths.Add(path)
	}
	for path := range d.Modified {
		paths.Add(path)
	}
	for path := range d.Deleted {
		paths.Add(path)
	}
	return paths
}
