package baseline

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-tools/agentsync/internal/sync"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func snapshot(paths ...string) sync.TreeSnapshot {
	snap := make(sync.TreeSnapshot, len(paths))
	for i, path := range paths {
		snap[path] = &sync.FileFingerprint{
			Path:     path,
			Checksum: sync.ChecksumPrefix + "abc",
			Size:     int64(i + 1),
			ModTime:  time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC),
		}
	}
	return snap
}

func TestLoadMissingBaselineIsNil(t *testing.T) {
	store := testStore(t)

	snap, err := store.Load("claude", sync.SideSource)
	require.NoError(t, err)
	assert.Nil(t, snap, "first run must be distinguishable from an empty tree")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := testStore(t)
	in := snapshot("a.md", "sub/b.md")

	require.NoError(t, store.Save("claude", sync.SideSource, in))
	out, err := store.Load("claude", sync.SideSource)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, in["a.md"].Checksum, out["a.md"].Checksum)
	assert.Equal(t, in["a.md"].Size, out["a.md"].Size)
	assert.True(t, in["sub/b.md"].ModTime.Equal(out["sub/b.md"].ModTime), "mtime survives with nanosecond precision")
}

func TestSaveReplacesWholeSnapshot(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save("claude", sync.SideSource, snapshot("a.md", "b.md")))
	require.NoError(t, store.Save("claude", sync.SideSource, snapshot("c.md")))

	out, err := store.Load("claude", sync.SideSource)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Contains(t, out, "c.md")
}

func TestSnapshotsAreKeyedByToolAndSide(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save("claude", sync.SideSource, snapshot("src.md")))
	require.NoError(t, store.Save("claude", sync.SideTarget, snapshot("dst.md")))
	require.NoError(t, store.Save("cursor", sync.SideSource, snapshot("other.md")))

	src, err := store.Load("claude", sync.SideSource)
	require.NoError(t, err)
	assert.Contains(t, src, "src.md")
	assert.NotContains(t, src, "dst.md")

	other, err := store.Load("cursor", sync.SideSource)
	require.NoError(t, err)
	assert.Contains(t, other, "other.md")
}

func TestSaveEmptySnapshotIsNotFirstRun(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save("claude", sync.SideSource, snapshot("a.md")))
	require.NoError(t, store.Save("claude", sync.SideSource, sync.TreeSnapshot{}))

	out, err := store.Load("claude", sync.SideSource)
	require.NoError(t, err)
	assert.NotNil(t, out, "a recorded empty tree is not a first run")
	assert.Empty(t, out)
}

func TestSaveEmptySnapshotOnFreshPairIsRecorded(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save("claude", sync.SideSource, sync.TreeSnapshot{}))

	out, err := store.Load("claude", sync.SideSource)
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestForget(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Save("claude", sync.SideSource, snapshot("a.md")))
	require.NoError(t, store.Save("claude", sync.SideTarget, snapshot("a.md")))

	require.NoError(t, store.Forget("claude"))

	for _, side := range []sync.Side{sync.SideSource, sync.SideTarget} {
		out, err := store.Load("claude", side)
		require.NoError(t, err)
		assert.Nil(t, out)
	}
}

func TestOpenCreatesStateDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	store, err := Open(dir)
	require.NoError(t, err)
	defer store.Close()
	assert.DirExists(t, dir)
}
