package snapshot

import "errors"

// ErrCorrupt means the snapshot container itself could not be parsed.
var ErrCorrupt = errors.New("snapshot is corrupt")
