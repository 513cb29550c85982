// Package inbox runs a causal receiver as an independent actor: messages are
// queued on a channel and handed to the receiver by a dedicated goroutine.
package inbox
