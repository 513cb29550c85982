package clock

import (
	"fmt"
	"strings"
)

// VectorClock represents a vector clock as a fixed-length slice indexed by node ID.
// Thread-safe operations should be handled by the caller.
type VectorClock []uint64

// New creates a new all-zero vector clock with one slot per node.
func New(n int) VectorClock {
	if n < 0 {
		n = 0
	}
	return make(VectorClock, n)
}

// Len returns the number of slots in the clock.
func (vc VectorClock) Len() int {
	return len(vc)
}

// Increment records a local send event for the given node ID.
func (vc VectorClock) Increment(self int) {
	vc[self]++
}

// Observe records that one more message from sender has been delivered.
func (vc VectorClock) Observe(sender int) {
	vc[sender]++
}

// Get returns the counter for the given node ID, or 0 if out of range.
func (vc VectorClock) Get(id int) uint64 {
	if id < 0 || id >= len(vc) {
		return 0
	}
	return vc[id]
}

// Copy creates a deep copy of the vector clock.
func (vc VectorClock) Copy() VectorClock {
	if vc == nil {
		return nil
	}
	return append(VectorClock(make([]uint64, 0, len(vc))), vc...)
}

// Snapshot returns an independent copy suitable for embedding in a message.
func (vc VectorClock) Snapshot() VectorClock {
	return vc.Copy()
}

// CompareResult represents the result of comparing two vector clocks.
type CompareResult int

const (
	// Before indicates this clock happened before the other.
	Before CompareResult = iota
	// After indicates this clock happened after the other.
	After
	// Concurrent indicates the clocks are concurrent (no causal relationship).
	Concurrent
	// Equal indicates the clocks are equal.
	Equal
)

// String returns the string representation of CompareResult.
func (r CompareResult) String() string {
	switch r {
	case Before:
		return "BEFORE"
	case After:
		return "AFTER"
	case Concurrent:
		return "CONCURRENT"
	case Equal:
		return "EQUAL"
	default:
		return "UNKNOWN"
	}
}

// Compare compares two vector clocks and returns their relationship.
// Missing slots in the shorter clock are treated as zero.
// Returns:
//   - Equal: if all counters are equal
//   - Before: if this clock happened before other (all counters <=, at least one <)
//   - After: if this clock happened after other (all counters >=, at least one >)
//   - Concurrent: if neither dominates (some counters are greater, some are less)
func (vc VectorClock) Compare(other VectorClock) CompareResult {
	n := len(vc)
	if len(other) > n {
		n = len(other)
	}

	var thisLess, thisGreater bool
	for i := 0; i < n; i++ {
		thisVal := vc.Get(i)
		otherVal := other.Get(i)
		if thisVal < otherVal {
			thisLess = true
		} else if thisVal > otherVal {
			thisGreater = true
		}
	}

	switch {
	case !thisLess && !thisGreater:
		return Equal
	case thisLess && !thisGreater:
		return Before
	case thisGreater && !thisLess:
		return After
	default:
		return Concurrent
	}
}

// Equal checks if two vector clocks are equal slot by slot.
func (vc VectorClock) Equal(other VectorClock) bool {
	if len(vc) != len(other) {
		return false
	}
	for i := range vc {
		if vc[i] != other[i] {
			return false
		}
	}
	return true
}

// String returns a string representation of the vector clock, e.g. "[1 0 2]".
func (vc VectorClock) String() string {
	parts := make([]string, len(vc))
	for i, v := range vc {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Dominates returns true if this clock dominates (happened after) the other.
func (vc VectorClock) Dominates(other VectorClock) bool {
	return vc.Compare(other) == After
}
