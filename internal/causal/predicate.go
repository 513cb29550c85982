package causal

import "causalcast/internal/clock"

// Deliverable reports whether a message from sender stamped with remote can
// be delivered at a node whose current clock is local.
//
// The message must be the next unseen message from sender, and the receiver
// must already know every event the sender knew when it sent the message.
// Both clocks must have the same length and sender must index into them.
func Deliverable(local, remote clock.VectorClock, sender int) bool {
	if len(local) != len(remote) || sender < 0 || sender >= len(local) {
		return false
	}

	if local[sender]+1 != remote[sender] {
		return false
	}

	for i := range local {
		if i != sender && local[i] < remote[i] {
			return false
		}
	}
	return true
}

// stale reports whether the message from sender was already delivered.
func stale(local, remote clock.VectorClock, sender int) bool {
	return remote[sender] <= local[sender]
}
