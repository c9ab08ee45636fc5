package sync

import "errors"

var (
	// ErrToolNotFound means the requested tool is unknown to the configuration.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolDisabled means the tool exists but is disabled in the configuration.
	ErrToolDisabled = errors.New("tool disabled")

	// ErrInvalidDirection rejects directions outside push/pull/sync.
	ErrInvalidDirection = errors.New("invalid sync direction")

	// ErrRenameThreshold rejects similarity thresholds other than exact match.
	ErrRenameThreshold = errors.New("unsupported rename similarity threshold")
)
