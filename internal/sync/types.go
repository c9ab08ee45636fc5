// Package sync implements the agentsync engine: tree scanning, change
// classification against a recorded baseline, rename detection, transition
// planning for a requested direction and loss-safe plan execution.
package sync

import (
	"fmt"
	"time"
)

// ChecksumPrefix tags every checksum with the hash algorithm that produced it.
const ChecksumPrefix = "sha256:"

// FileFingerprint identifies one file's content state. Two fingerprints are
// equal iff their checksum strings are equal; size and mtime are fast-path
// hints only, never authoritative.
type FileFingerprint struct {
	Path     string
	Checksum string
	Size     int64
	ModTime  time.Time
}

// Equal reports content equality by checksum.
func (f *FileFingerprint) Equal(other *FileFingerprint) bool {
	if f == nil || other == nil {
		return false
	}
	return f.Checksum == other.Checksum
}

// TreeSnapshot maps forward-slash relative paths to fingerprints, the result
// of one scanner pass over one root. Treated as immutable once produced.
type TreeSnapshot map[string]*FileFingerprint

// Side names one of the two trees in a tool's (source, target) pair.
type Side string

const (
	SideSource Side = "source"
	SideTarget Side = "target"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideSource {
		return SideTarget
	}
	return SideSource
}

// Direction selects which side is authoritative, or whether both reconcile.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionSync Direction = "sync"
)

// ParseDirection rejects anything outside the closed direction set.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionPush, DirectionPull, DirectionSync:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// ActionKind is the closed set of planned operations.
type ActionKind string

const (
	ActionCopy   ActionKind = "copy"
	ActionDelete ActionKind = "delete"
	ActionRename ActionKind = "rename"
)

// Action is one planned operation against the To side's tree.
type Action struct {
	Kind ActionKind
	// Path is the relative path the action applies to (for renames, the new path).
	Path string
	// RenameFrom is set when the action absorbs a detected rename; the old
	// path is removed and Path is written, as one unit.
	RenameFrom string
	From       Side
	To         Side
	// Fingerprint is the authoritative side's fingerprint for copies/renames.
	Fingerprint *FileFingerprint
}

// DestructivePath is the path the action removes: the old path for renames,
// Path for deletes, empty for copies.
func (a Action) DestructivePath() string {
	switch a.Kind {
	case ActionRename:
		return a.RenameFrom
	case ActionDelete:
		return a.Path
	}
	return ""
}

// ConflictResolution records how (or whether) a conflict was settled.
type ConflictResolution string

const (
	ResolutionManual    ConflictResolution = "manual"
	ResolutionMtimeWins ConflictResolution = "mtime-wins"
)

// Conflict is a path changed on both sides since baseline with different
// resulting content. Reported as data, never as an error.
type Conflict struct {
	Path       string
	Source     *FileFingerprint
	Target     *FileFingerprint
	Resolution ConflictResolution
	// Winner is set when Resolution is not manual.
	Winner Side
}

// ActionFailure localizes one failed action; it never aborts the run.
type ActionFailure struct {
	Action Action
	Err    string
}

// SyncResult is the per-tool outcome of one run.
type SyncResult struct {
	Tool      string
	Direction Direction
	DryRun    bool

	Copied  int
	Deleted int
	Renamed int
	Skipped int
	Failed  int

	// Actions is the full planned list in deterministic order; for dry runs it
	// is the entire output of the run.
	Actions   []Action
	Conflicts []Conflict
	Failures  []ActionFailure
	// BackedUp records, per destructive path, whether a backup was taken.
	BackedUp map[string]bool
}

// HasChanges reports whether the plan contained any work.
func (r *SyncResult) HasChanges() bool {
	return len(r.Actions) > 0 || len(r.Conflicts) > 0
}
