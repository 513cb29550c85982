package causal

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"

	"causalcast/internal/clock"
	"causalcast/internal/metrics"
)

// Receiver accepts messages multicast by a node. *Node implements it, and so
// do the transports that carry messages to nodes in other goroutines or
// processes.
type Receiver interface {
	Receive(msg Message) error
}

// DeliveryHook is invoked once per delivered message, in delivery order.
// A hook may call Send on its node but must not synchronously hand a
// message back to the same node's Receive.
type DeliveryHook func(d Delivery)

// IDGenerator produces message identifiers.
type IDGenerator func() string

// UUIDv7 generates time-sortable message identifiers.
func UUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Option configures a Node.
type Option func(*Node)

// WithDeliveryHook sets the callback invoked for each delivered message.
func WithDeliveryHook(hook DeliveryHook) Option {
	return func(n *Node) {
		n.hook = hook
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithMetrics sets the metrics sink. Defaults to metrics.Discard().
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Node) {
		n.metrics = m
	}
}

// WithIDGenerator overrides how message IDs are generated.
func WithIDGenerator(gen IDGenerator) Option {
	return func(n *Node) {
		n.newID = gen
	}
}

// Node is one participant in causal broadcast.
type Node struct {
	id int
	n  int

	mu        sync.Mutex // Protects clock, queue, delivered and hookNext
	clock     clock.VectorClock
	queue     *HoldBackQueue
	delivered []Delivery
	hookNext  uint64

	hookMu   sync.Mutex // Protects hookTurn
	hookCond *sync.Cond
	hookTurn uint64
	hook     DeliveryHook

	newID   IDGenerator
	logger  log.Logger
	metrics *metrics.Metrics
}

// NewNode creates node id of a group with n members.
func NewNode(id, n int, opts ...Option) (*Node, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNodeCount, n)
	}
	if id < 0 || id >= n {
		return nil, fmt.Errorf("%w: id=%d n=%d", ErrInvalidNodeID, id, n)
	}

	node := &Node{
		id:     id,
		n:      n,
		clock:  clock.New(n),
		queue:  NewHoldBackQueue(),
		newID:  UUIDv7,
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(node)
	}
	if node.metrics == nil {
		node.metrics = metrics.Discard()
	}
	node.hookCond = sync.NewCond(&node.hookMu)
	node.metrics = node.metrics.For(strconv.Itoa(id))
	node.logger = log.With(node.logger, "node", id)

	return node, nil
}

// ID returns the node ID.
func (n *Node) ID() int {
	return n.id
}

// N returns the group size.
func (n *Node) N() int {
	return n.n
}

// Clock returns a snapshot of the node's vector clock.
func (n *Node) Clock() clock.VectorClock {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clock.Snapshot()
}

// Pending returns the number of messages in the hold-back queue.
func (n *Node) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queue.Len()
}

// Held returns a copy of the messages waiting in the hold-back queue.
func (n *Node) Held() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.queue.Messages()
}

// Delivered returns the deliveries made so far, in delivery order.
func (n *Node) Delivered() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Delivery, len(n.delivered))
	for i, d := range n.delivered {
		out[i] = copyDelivery(d)
	}
	return out
}

// DeliveredPayloads returns the delivered payloads, in delivery order.
func (n *Node) DeliveredPayloads() [][]byte {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([][]byte, len(n.delivered))
	for i, d := range n.delivered {
		out[i] = append([]byte(nil), d.Payload...)
	}
	return out
}

// Send stamps a new message with the node's clock and hands it to each
// recipient. Recipients are called without holding the node lock. Errors from
// recipients are logged; there is no retry.
func (n *Node) Send(payload []byte, recipients ...Receiver) Message {
	n.mu.Lock()
	n.clock.Increment(n.id)
	msg := NewMessage(n.newID(), n.id, payload, n.clock)
	n.mu.Unlock()

	n.metrics.Sent.Add(1)
	level.Debug(n.logger).Log("msg", "send", "id", msg.id, "clock", msg.clock, "recipients", len(recipients))

	for _, r := range recipients {
		if err := r.Receive(msg); err != nil {
			level.Warn(n.logger).Log("msg", "failed to hand message to recipient", "id", msg.id, "err", err)
		}
	}
	return msg
}

// Validate checks that msg can ever be accepted by this node.
func (n *Node) Validate(msg Message) error {
	if msg.sender < 0 || msg.sender >= n.n {
		return fmt.Errorf("%w: sender=%d n=%d", ErrOutOfRangeSender, msg.sender, n.n)
	}
	if len(msg.clock) != n.n {
		return fmt.Errorf("%w: got %d slots, want %d", ErrClockSize, len(msg.clock), n.n)
	}
	return nil
}

// Receive delivers msg if it is causally ready and then drains the
// hold-back queue; otherwise msg is buffered. Protocol violations are
// rejected and never buffered. Messages already delivered are dropped.
func (n *Node) Receive(msg Message) error {
	if err := n.Validate(msg); err != nil {
		n.metrics.Rejected.Add(1)
		level.Warn(n.logger).Log("msg", "rejected message", "id", msg.id, "err", err)
		return err
	}

	n.mu.Lock()

	if stale(n.clock, msg.clock, msg.sender) {
		n.mu.Unlock()
		n.metrics.Dropped.Add(1)
		level.Info(n.logger).Log("msg", "dropped already delivered message", "id", msg.id, "sender", msg.sender, "seq", msg.Seq())
		return nil
	}

	if !Deliverable(n.clock, msg.clock, msg.sender) {
		n.queue.Append(msg)
		n.metrics.Held.Add(1)
		n.metrics.Pending.Set(float64(n.queue.Len()))
		level.Debug(n.logger).Log("msg", "holding message", "id", msg.id, "sender", msg.sender, "clock", msg.clock, "local", n.clock)
		n.mu.Unlock()
		return nil
	}

	batch := n.drainLocked([]Delivery{n.deliverLocked(msg)})
	n.runHooks(batch)
	return nil
}

// Drain re-scans the hold-back queue and delivers whatever became ready.
// It returns the number of messages delivered.
func (n *Node) Drain() int {
	n.mu.Lock()
	batch := n.drainLocked(nil)
	n.runHooks(batch)
	return len(batch)
}

// drainLocked appends whatever the hold-back queue releases to batch.
// Must be called with n.mu held.
func (n *Node) drainLocked(batch []Delivery) []Delivery {
	before := n.queue.Len()
	delivered := n.queue.Drain(n.clock, func(m Message) {
		batch = append(batch, n.deliverLocked(m))
	})
	if dropped := before - n.queue.Len() - delivered; dropped > 0 {
		n.metrics.Dropped.Add(float64(dropped))
		level.Info(n.logger).Log("msg", "dropped held duplicates", "count", dropped)
	}
	n.metrics.Pending.Set(float64(n.queue.Len()))
	return batch
}

// deliverLocked applies msg to the clock and the delivery log.
// Must be called with n.mu held.
func (n *Node) deliverLocked(msg Message) Delivery {
	n.clock.Observe(msg.sender)

	d := Delivery{
		Receiver:  n.id,
		Sender:    msg.sender,
		MessageID: msg.id,
		Payload:   msg.payload,
		Clock:     msg.clock,
	}
	n.delivered = append(n.delivered, d)
	n.metrics.Delivered.Add(1)
	level.Debug(n.logger).Log("msg", "delivered", "id", msg.id, "sender", msg.sender, "local", n.clock)
	return d
}

// runHooks takes a ticket under n.mu, releases it, and waits for its turn so
// that batches reach the hook in the order they were delivered. Must be
// called with n.mu held; returns with it released.
func (n *Node) runHooks(batch []Delivery) {
	if n.hook == nil || len(batch) == 0 {
		n.mu.Unlock()
		return
	}

	ticket := n.hookNext
	n.hookNext++
	n.mu.Unlock()

	n.hookMu.Lock()
	for n.hookTurn != ticket {
		n.hookCond.Wait()
	}
	n.hookMu.Unlock()

	defer func() {
		n.hookMu.Lock()
		n.hookTurn++
		n.hookCond.Broadcast()
		n.hookMu.Unlock()
	}()

	for _, d := range batch {
		n.hook(copyDelivery(d))
	}
}

func copyDelivery(d Delivery) Delivery {
	d.Payload = append([]byte(nil), d.Payload...)
	d.Clock = d.Clock.Copy()
	return d
}
