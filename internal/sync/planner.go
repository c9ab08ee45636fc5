package sync

import (
	"fmt"
	"log/slog"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// SideState bundles everything the planner needs to know about one side.
type SideState struct {
	Side     Side
	Root     string
	Snapshot TreeSnapshot
	Diff     *Diff
}

type PlanOptions struct {
	// AutoResolve settles bidirectional conflicts by most-recent-mtime-wins.
	// This is a deliberate, lossy tie-break, not a merge; resolved conflicts
	// are still reported.
	AutoResolve bool
}

// Plan is an ordered action list plus the conflicts that planning surfaced.
type Plan struct {
	Actions   []Action
	Conflicts []Conflict
}

// renamePairs is a consumed, one-to-one assignment of rename candidates.
type renamePairs struct {
	byOld map[string]string // old path -> new path
	byNew map[string]string // new path -> old path
}

// BuildPlan turns the two sides' diffs plus detected renames into an ordered
// action list for the requested direction. Ordering is deterministic: path
// ascending, Delete before Copy at the same path.
func BuildPlan(source, target *SideState, renames *RenameSet, direction Direction, opts PlanOptions) (*Plan, error) {
	if renames == nil {
		renames = &RenameSet{}
	}

	var plan *Plan
	switch direction {
	case DirectionPush:
		plan = planOneWay(source, target, renames.Source)
	case DirectionPull:
		plan = planOneWay(target, source, renames.Target)
	case DirectionSync:
		plan = planBidirectional(source, target, renames, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDirection, direction)
	}

	sortActions(plan.Actions)
	sort.Slice(plan.Conflicts, func(i, j int) bool {
		return plan.Conflicts[i].Path < plan.Conflicts[j].Path
	})
	return plan, nil
}

// planOneWay propagates the authority side's state onto the receiver.
// Independent receiver-side changes are ignored: one-directional authority.
func planOneWay(authority, receiver *SideState, candidates []RenameCandidate) *Plan {
	plan := &Plan{}
	pairs := resolveRenames(candidates, authority.Diff)

	for _, oldPath := range sortedKeys(pairs.byOld) {
		newPath := pairs.byOld[oldPath]
		plan.Actions = append(plan.Actions, planRename(authority, receiver, oldPath, newPath)...)
	}

	for _, path := range sortedKeys(authority.Diff.Added) {
		if _, consumed := pairs.byNew[path]; consumed {
			continue
		}
		plan.Actions = append(plan.Actions, planCopy(authority, receiver, path)...)
	}
	for _, path := range sortedKeys(authority.Diff.Modified) {
		plan.Actions = append(plan.Actions, planCopy(authority, receiver, path)...)
	}

	for _, path := range sortedKeys(authority.Diff.Deleted) {
		if _, consumed := pairs.byOld[path]; consumed {
			continue
		}
		plan.Actions = append(plan.Actions, planDelete(authority, receiver, path)...)
	}

	return plan
}

func planBidirectional(source, target *SideState, renames *RenameSet, opts PlanOptions) *Plan {
	plan := &Plan{}

	srcChanged := source.Diff.ChangedPaths()
	dstChanged := target.Diff.ChangedPaths()

	// Rename absorption only applies when the other side left both endpoints
	// alone; anything entangled with opposing changes degrades to per-path
	// handling below.
	srcPairs := resolveRenames(filterCandidates(renames.Source, dstChanged), source.Diff)
	dstPairs := resolveRenames(filterCandidates(renames.Target, srcChanged), target.Diff)

	consumed := make(map[string]bool)
	for _, oldPath := range sortedKeys(srcPairs.byOld) {
		newPath := srcPairs.byOld[oldPath]
		plan.Actions = append(plan.Actions, planRename(source, target, oldPath, newPath)...)
		consumed[oldPath] = true
		consumed[newPath] = true
	}
	for _, oldPath := range sortedKeys(dstPairs.byOld) {
		newPath := dstPairs.byOld[oldPath]
		plan.Actions = append(plan.Actions, planRename(target, source, oldPath, newPath)...)
		consumed[oldPath] = true
		consumed[newPath] = true
	}

	union := srcChanged.Union(dstChanged).ToSlice()
	sort.Strings(union)

	for _, path := range union {
		if consumed[path] {
			continue
		}

		srcTag := tagOf(source.Diff, path)
		dstTag := tagOf(target.Diff, path)

		switch {
		case dstTag == tagNone:
			// Only the source moved since baseline.
			if srcTag == tagDeleted {
				plan.Actions = append(plan.Actions, planDelete(source, target, path)...)
			} else {
				plan.Actions = append(plan.Actions, planCopy(source, target, path)...)
			}

		case srcTag == tagNone:
			if dstTag == tagDeleted {
				plan.Actions = append(plan.Actions, planDelete(target, source, path)...)
			} else {
				plan.Actions = append(plan.Actions, planCopy(target, source, path)...)
			}

		case srcTag == tagDeleted && dstTag == tagDeleted:
			// Both sides deleted; nothing to do, the baseline update clears it.

		case srcTag == tagDeleted:
			// Deletion on one side, new content on the other: the
			// modification wins, the file is restored.
			slog.Info("sync: modification outweighs deletion", "path", path, "kept", SideTarget)
			plan.Actions = append(plan.Actions, planCopy(target, source, path)...)

		case dstTag == tagDeleted:
			slog.Info("sync: modification outweighs deletion", "path", path, "kept", SideSource)
			plan.Actions = append(plan.Actions, planCopy(source, target, path)...)

		default:
			// Changed on both sides.
			srcFP := source.Snapshot[path]
			dstFP := target.Snapshot[path]
			if srcFP.Equal(dstFP) {
				// Converged independently; nothing to transfer.
				continue
			}

			if !opts.AutoResolve {
				plan.Conflicts = append(plan.Conflicts, Conflict{
					Path:       path,
					Source:     srcFP,
					Target:     dstFP,
					Resolution: ResolutionManual,
				})
				continue
			}

			winner, loser := source, target
			if dstFP.ModTime.After(srcFP.ModTime) {
				winner, loser = target, source
			}
			slog.Warn("sync: conflict auto-resolved by mtime, losing side's content is overwritten",
				"path", path, "winner", winner.Side)
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Path:       path,
				Source:     srcFP,
				Target:     dstFP,
				Resolution: ResolutionMtimeWins,
				Winner:     winner.Side,
			})
			plan.Actions = append(plan.Actions, planCopy(winner, loser, path)...)
		}
	}

	return plan
}

// planCopy emits a copy unless the receiver already holds identical content.
func planCopy(authority, receiver *SideState, path string) []Action {
	fp := authority.Snapshot[path]
	if fp == nil {
		return nil
	}
	if fp.Equal(receiver.Snapshot[path]) {
		return nil
	}
	return []Action{{
		Kind:        ActionCopy,
		Path:        path,
		From:        authority.Side,
		To:          receiver.Side,
		Fingerprint: fp,
	}}
}

// planDelete emits a delete only when the receiver still has the path.
func planDelete(authority, receiver *SideState, path string) []Action {
	if receiver.Snapshot[path] == nil {
		return nil
	}
	return []Action{{
		Kind: ActionDelete,
		Path: path,
		From: authority.Side,
		To:   receiver.Side,
	}}
}

// planRename collapses a delete+add pair into a single rename when the
// receiver still holds the old path; otherwise it degrades to a plain copy.
// Avoids backing up content that is, in fact, still present under a new name.
func planRename(authority, receiver *SideState, oldPath, newPath string) []Action {
	fp := authority.Snapshot[newPath]
	if receiver.Snapshot[oldPath] == nil {
		return planCopy(authority, receiver, newPath)
	}
	return []Action{{
		Kind:        ActionRename,
		Path:        newPath,
		RenameFrom:  oldPath,
		From:        authority.Side,
		To:          receiver.Side,
		Fingerprint: fp,
	}}
}

// resolveRenames turns the candidate list into a deterministic one-to-one
// assignment: candidates arrive sorted, the lowest-lexicographic pairing wins
// and surplus matches degrade to ordinary add+delete handling.
func resolveRenames(candidates []RenameCandidate, diff *Diff) renamePairs {
	pairs := renamePairs{
		byOld: make(map[string]string),
		byNew: make(map[string]string),
	}
	for _, c := range candidates {
		if _, taken := pairs.byOld[c.OldPath]; taken {
			continue
		}
		if _, taken := pairs.byNew[c.NewPath]; taken {
			continue
		}
		if _, ok := diff.Deleted[c.OldPath]; !ok {
			continue
		}
		if _, ok := diff.Added[c.NewPath]; !ok {
			continue
		}
		pairs.byOld[c.OldPath] = c.NewPath
		pairs.byNew[c.NewPath] = c.OldPath
	}
	return pairs
}

func filterCandidates(candidates []RenameCandidate, otherChanged mapset.Set[string]) []RenameCandidate {
	var kept []RenameCandidate
	for _, c := range candidates {
		if otherChanged.Contains(c.OldPath) || otherChanged.Contains(c.NewPath) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

type diffTag int

const (
	tagNone diffTag = iota
	tagAdded
	tagModified
	tagDeleted
)

func tagOf(d *Diff, path string) diffTag {
	if _, ok := d.Added[path]; ok {
		return tagAdded
	}
	if _, ok := d.Modified[path]; ok {
		return tagModified
	}
	if _, ok := d.Deleted[path]; ok {
		return tagDeleted
	}
	return tagNone
}

var kindRank = map[ActionKind]int{
	ActionDelete: 0,
	ActionCopy:   1,
	ActionRename: 2,
}

func sortActions(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Path != actions[j].Path {
			return actions[i].Path < actions[j].Path
		}
		return kindRank[actions[i].Kind] < kindRank[actions[j].Kind]
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
