package sync

import (
	"fmt"
	"log/slog"
	"sort"
)

// RenameCandidate pairs a deleted path with an added path of identical
// content. Confidence is 1.0 for exact checksum matches, the only strategy
// implemented; the record shape is kept open for fuzzy matching later.
type RenameCandidate struct {
	OldPath    string
	NewPath    string
	Checksum   string
	Confidence float64
}

// RenameSet groups detected candidates by the side whose diff produced them.
type RenameSet struct {
	Source []RenameCandidate
	Target []RenameCandidate
}

// DetectRenames matches deleted paths against added paths by checksum.
// deleted maps relative path to the checksum recorded at baseline; added maps
// relative path to the absolute on-disk path, fingerprinted fresh here since
// its checksum was unknown when the deletion set was built. threshold values
// other than 1.0 are a configuration error. When several added paths share a
// checksum every pairing is emitted; the planner disambiguates.
func DetectRenames(deleted map[string]string, added map[string]string, threshold float64, fp *Fingerprinter) ([]RenameCandidate, error) {
	if threshold != 1.0 {
		return nil, fmt.Errorf("%w: %v (only exact matching is supported)", ErrRenameThreshold, threshold)
	}
	if len(deleted) == 0 || len(added) == 0 {
		return nil, nil
	}

	addedSums := make(map[string][]string) // checksum -> added rel paths
	for rel, abs := range added {
		print, err := fp.File(abs, rel)
		if err != nil {
			slog.Warn("rename detection: failed to fingerprint added file", "path", rel, "error", err)
			continue
		}
		addedSums[print.Checksum] = append(addedSums[print.Checksum], rel)
	}

	var candidates []RenameCandidate
	for deletedPath, checksum := range deleted {
		for _, newPath := range addedSums[checksum] {
			candidates = append(candidates, RenameCandidate{
				OldPath:    deletedPath,
				NewPath:    newPath,
				Checksum:   checksum,
				Confidence: 1.0,
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].OldPath != candidates[j].OldPath {
			return candidates[i].OldPath < candidates[j].OldPath
		}
		return candidates[i].NewPath < candidates[j].NewPath
	})

	return candidates, nil
}
