package causal

import "errors"

var (
	// ErrInvalidNodeCount is returned when a node is created with N <= 0.
	ErrInvalidNodeCount = errors.New("node count must be positive")
	// ErrInvalidNodeID is returned when a node ID is outside [0, N).
	ErrInvalidNodeID = errors.New("node id out of range")
	// ErrOutOfRangeSender is returned when a message names a sender outside [0, N).
	ErrOutOfRangeSender = errors.New("message sender out of range")
	// ErrClockSize is returned when a message clock does not have exactly N slots.
	ErrClockSize = errors.New("message clock size mismatch")
)

// IsProtocolViolation reports whether err means a message can never be
// accepted by the receiving node.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrOutOfRangeSender) || errors.Is(err, ErrClockSize)
}
