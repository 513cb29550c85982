// Package clock provides a fixed-size vector clock for tracking causality
// between a known set of nodes. Slot i counts the send events of node i
// that are causally known to the clock's owner.
package clock
