package causal

import "causalcast/internal/clock"

// HoldBackQueue buffers messages that are not yet deliverable.
// Entry order carries no meaning; the predicate alone decides delivery order.
// Thread-safe operations should be handled by the caller.
type HoldBackQueue struct {
	msgs []Message
}

// NewHoldBackQueue creates an empty queue.
func NewHoldBackQueue() *HoldBackQueue {
	return &HoldBackQueue{}
}

// Append buffers a message.
func (q *HoldBackQueue) Append(msg Message) {
	q.msgs = append(q.msgs, msg)
}

// Len returns the number of buffered messages.
func (q *HoldBackQueue) Len() int {
	return len(q.msgs)
}

// Messages returns a copy of the buffered messages.
func (q *HoldBackQueue) Messages() []Message {
	return append([]Message(nil), q.msgs...)
}

// Drain delivers every buffered message that is deliverable against local.
// deliver must advance local for the delivered message, which may make more
// entries deliverable, so the queue is scanned again until a full pass
// delivers nothing. Entries local already covers are duplicates and are
// discarded. It returns the number of messages delivered.
func (q *HoldBackQueue) Drain(local clock.VectorClock, deliver func(Message)) int {
	delivered := 0
	for progress := true; progress; {
		progress = false
		kept := q.msgs[:0]
		for _, msg := range q.msgs {
			if stale(local, msg.clock, msg.sender) {
				continue
			}
			if Deliverable(local, msg.clock, msg.sender) {
				deliver(msg)
				delivered++
				progress = true
				continue
			}
			kept = append(kept, msg)
		}
		for i := len(kept); i < len(q.msgs); i++ {
			q.msgs[i] = Message{}
		}
		q.msgs = kept
	}
	return delivered
}
