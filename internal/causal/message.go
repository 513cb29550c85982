package causal

import (
	"fmt"

	"causalcast/internal/clock"
)

// Message is an immutable envelope carrying a payload and the sender's
// vector clock at send time.
type Message struct {
	id      string
	sender  int
	payload []byte
	clock   clock.VectorClock
}

// NewMessage builds a message. Payload and clock are copied, so later
// changes to the caller's values do not affect the message.
func NewMessage(id string, sender int, payload []byte, vc clock.VectorClock) Message {
	return Message{
		id:      id,
		sender:  sender,
		payload: append([]byte(nil), payload...),
		clock:   vc.Copy(),
	}
}

// ID returns the message identifier. It is used for tracing only.
func (m Message) ID() string {
	return m.id
}

// Sender returns the ID of the node that sent the message.
func (m Message) Sender() int {
	return m.sender
}

// Payload returns a copy of the message payload.
func (m Message) Payload() []byte {
	return append([]byte(nil), m.payload...)
}

// Clock returns a copy of the sender's clock at send time.
func (m Message) Clock() clock.VectorClock {
	return m.clock.Copy()
}

// Seq returns the sender's sequence number for this message (1-based).
func (m Message) Seq() uint64 {
	return m.clock.Get(m.sender)
}

// String returns a short description for logs.
func (m Message) String() string {
	return fmt.Sprintf("msg(id=%s sender=%d clock=%s)", m.id, m.sender, m.clock)
}

// Delivery records one message delivered at a node.
type Delivery struct {
	Receiver  int
	Sender    int
	MessageID string
	Payload   []byte
	Clock     clock.VectorClock
}
