package history

import "github.com/lattice-dev/lattice/pkg/types"

// FindLatestCompactionBoundaryIndex returns the index of the most recent
// durable compaction boundary in messages, or -1 when none exists.
//
// The scan runs backward from the end: newer boundaries supersede older ones,
// so the first valid hit wins. Boundary-shaped messages that fail any part of
// the durability predicate (wrong role, missing or non-positive epoch,
// malformed trigger) are skipped without stopping the scan, so a corrupt
// marker never shadows the durable boundary beneath it.
func FindLatestCompactionBoundaryIndex(messages []*types.Message) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].IsCompactionBoundary() {
			return i
		}
	}
	return -1
}

// SliceFromLatestCompactionBoundary returns the message slice to send to the
// model. When a durable boundary exists at index i the result is messages[i:]:
// the boundary message is a self-contained summary of everything before it and
// becomes the payload head.
//
// When no boundary exists the input slice itself is returned. Callers rely on
// reference equality to detect that no compaction occurred, and the no-copy
// path keeps the common case allocation free.
func SliceFromLatestCompactionBoundary(messages []*types.Message) []*types.Message {
	i := FindLatestCompactionBoundaryIndex(messages)
	if i < 0 {
		return messages
	}
	return messages[i:]
}
