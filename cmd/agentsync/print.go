package main

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/agentic-tools/agentsync/internal/sync"
)

var actionVerb = map[sync.ActionKind]string{
	sync.ActionCopy:   "copy",
	sync.ActionDelete: "delete",
	sync.ActionRename: "rename",
}

func printResult(result *sync.SyncResult) {
	prefix := ""
	if result.DryRun {
		prefix = yellow("[dry run] ")
	}

	if !result.HasChanges() {
		fmt.Printf("%s%s: %s\n", prefix, cyan(result.Tool), green("up to date"))
		return
	}

	fmt.Printf("%s%s (%s): %d copied, %d deleted, %d renamed, %d skipped",
		prefix, cyan(result.Tool), result.Direction,
		result.Copied, result.Deleted, result.Renamed, result.Skipped)
	if result.Failed > 0 {
		fmt.Printf(", %s", red(fmt.Sprintf("%d failed", result.Failed)))
	}
	fmt.Println()

	if result.DryRun {
		for _, action := range result.Actions {
			printAction(action)
		}
	}

	for _, conflict := range result.Conflicts {
		printConflict(conflict)
	}
	for _, failure := range result.Failures {
		fmt.Printf("  %s %s %s: %s\n", red("failed"), actionVerb[failure.Action.Kind], failure.Action.Path, failure.Err)
	}
}

func printAction(action sync.Action) {
	switch action.Kind {
	case sync.ActionCopy:
		size := ""
		if action.Fingerprint != nil {
			size = " (" + humanize.Bytes(uint64(action.Fingerprint.Size)) + ")"
		}
		fmt.Printf("  %s %s -> %s%s\n", green("copy"), action.Path, action.To, size)
	case sync.ActionDelete:
		fmt.Printf("  %s %s on %s\n", red("delete"), action.Path, action.To)
	case sync.ActionRename:
		fmt.Printf("  %s %s -> %s on %s\n", yellow("rename"), action.RenameFrom, action.Path, action.To)
	}
}

func printConflict(conflict sync.Conflict) {
	switch conflict.Resolution {
	case sync.ResolutionManual:
		fmt.Printf("  %s %s: changed on both sides (source %s, target %s)\n",
			red("conflict"), conflict.Path,
			humanize.Time(conflict.Source.ModTime), humanize.Time(conflict.Target.ModTime))
	default:
		fmt.Printf("  %s %s: %s side wins (%s)\n",
			yellow("conflict"), conflict.Path, conflict.Winner, conflict.Resolution)
	}
}
