package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testFP(path, checksum string, mtime time.Time) *FileFingerprint {
	return &FileFingerprint{
		Path:     path,
		Checksum: ChecksumPrefix + checksum,
		Size:     int64(len(checksum)),
		ModTime:  mtime,
	}
}

func testSnap(fps ...*FileFingerprint) TreeSnapshot {
	snap := make(TreeSnapshot, len(fps))
	for _, fp := range fps {
		snap[fp.Path] = fp
	}
	return snap
}

func TestClassifyFirstRun(t *testing.T) {
	now := time.Now()
	current := testSnap(
		testFP("a.md", "aaa", now),
		testFP("dir/b.md", "bbb", now),
	)

	diff := Classify(current, nil)

	assert.Len(t, diff.Added, 2)
	assert.Empty(t, diff.Modified)
	assert.Empty(t, diff.Deleted)
	assert.Empty(t, diff.Unchanged)
	assert.True(t, diff.Changed())
}

func TestClassifyBuckets(t *testing.T) {
	now := time.Now()
	baseline := testSnap(
		testFP("same.md", "aaa", now),
		testFP("edited.md", "bbb", now),
		testFP("gone.md", "ccc", now),
	)
	current := testSnap(
		testFP("same.md", "aaa", now),
		testFP("edited.md", "bb2", now.Add(time.Minute)),
		testFP("new.md", "ddd", now),
	)

	diff := Classify(current, baseline)

	assert.Contains(t, diff.Added, "new.md")
	assert.Contains(t, diff.Modified, "edited.md")
	assert.Contains(t, diff.Deleted, "gone.md")
	assert.Contains(t, diff.Unchanged, "same.md")
	assert.Len(t, diff.Added, 1)
	assert.Len(t, diff.Modified, 1)
	assert.Len(t, diff.Deleted, 1)
	assert.Len(t, diff.Unchanged, 1)

	// Deleted entries carry the baseline fingerprint, everything else the
	// current one.
	assert.Equal(t, ChecksumPrefix+"ccc", diff.Deleted["gone.md"].Checksum)
	assert.Equal(t, ChecksumPrefix+"bb2", diff.Modified["edited.md"].Checksum)
}

func TestClassifyTouchedButIdenticalContent(t *testing.T) {
	// Same checksum with a newer mtime is still unchanged: content is the
	// only thing that matters.
	now := time.Now()
	baseline := testSnap(testFP("a.md", "aaa", now))
	current := testSnap(testFP("a.md", "aaa", now.Add(time.Hour)))

	diff := Classify(current, baseline)

	assert.Contains(t, diff.Unchanged, "a.md")
	assert.False(t, diff.Changed())
}

func TestChangedPaths(t *testing.T) {
	now := time.Now()
	baseline := testSnap(testFP("gone.md", "ccc", now))
	current := testSnap(testFP("new.md", "ddd", now))

	paths := Classify(current, baseline).ChangedPaths()

	assert.True(t, paths.Contains("gone.md"))
	assert.True(t, paths.Contains("new.md"))
	assert.Equal(t, 2, paths.Cardinality())
}
