// Package causal implements causal broadcast delivery with vector clocks.
//
// A Node stamps every message it sends with a snapshot of its vector clock.
// Receivers deliver a message only when it is the next unseen message from
// its sender and everything the sender had delivered before sending is
// already delivered locally. Messages that arrive too early wait in a
// hold-back queue that is re-scanned after every delivery.
//
// Limitations:
// - The transport is assumed reliable. A lost message blocks every later
//   message from the same sender forever; no timeout or retransmission exists.
// - Group membership is fixed at construction.
package causal
