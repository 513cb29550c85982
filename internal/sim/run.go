package sim

import (
	"fmt"
	"slices"

	"github.com/go-kit/kit/log"

	"causalcast/internal/causal"
	"causalcast/internal/clock"
	"causalcast/internal/metrics"
)

// runner executes a scenario on a single goroutine. Message IDs are the
// scenario labels, so traces are reproducible.
type runner struct {
	scenario *Scenario
	result   *Result

	nodes     []*causal.Node
	sent      map[string]causal.Message
	delivered []int
	nextLabel string
}

// Run executes s and checks its expectations. The returned error reports a
// scenario that could not be run; failed expectations are recorded in the
// result instead.
func Run(s *Scenario, logger log.Logger) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	r := &runner{
		scenario:  s,
		result:    NewResult(s.Name),
		sent:      make(map[string]causal.Message),
		delivered: make([]int, s.Nodes),
	}

	for id := 0; id < s.Nodes; id++ {
		node, err := causal.NewNode(id, s.Nodes,
			causal.WithLogger(logger),
			causal.WithMetrics(metrics.Discard()),
			causal.WithIDGenerator(func() string { return r.nextLabel }),
			causal.WithDeliveryHook(r.onDeliver),
		)
		if err != nil {
			return nil, err
		}
		r.nodes = append(r.nodes, node)
	}

	for _, step := range s.Steps {
		switch {
		case step.Send != nil:
			r.send(step.Send)
		case step.Deliver != nil:
			for _, to := range step.Deliver.To {
				r.hand(to, r.sent[step.Deliver.Label])
			}
		}
	}

	r.collect()
	r.check()
	return r.result, nil
}

func (r *runner) send(step *SendStep) {
	r.nextLabel = step.Label
	msg := r.nodes[step.From].Send([]byte(step.Payload))
	r.sent[step.Label] = msg
	r.event(TraceEvent{Type: EventSend, Node: step.From, Label: msg.ID(), Sender: msg.Sender(), Clock: msg.Clock().String()})

	for _, to := range step.To {
		r.hand(to, msg)
	}
}

// hand gives msg to node to and records what happened to it.
func (r *runner) hand(to int, msg causal.Message) {
	node := r.nodes[to]
	pending := node.Pending()
	delivered := r.delivered[to]

	ev := TraceEvent{Node: to, Label: msg.ID(), Sender: msg.Sender(), Clock: msg.Clock().String()}

	err := node.Receive(msg)
	switch {
	case err != nil:
		ev.Type = EventReject
		ev.Error = err.Error()
	case node.Pending() > pending:
		ev.Type = EventHold
		ev.Local = node.Clock().String()
	case r.delivered[to] == delivered:
		ev.Type = EventDrop
		ev.Local = node.Clock().String()
	default:
		return
	}
	r.event(ev)
}

func (r *runner) onDeliver(d causal.Delivery) {
	r.delivered[d.Receiver]++
	r.event(TraceEvent{Type: EventDeliver, Node: d.Receiver, Label: d.MessageID, Sender: d.Sender, Clock: d.Clock.String()})
}

func (r *runner) event(ev TraceEvent) {
	ev.Seq = len(r.result.Trace) + 1
	r.result.Trace = append(r.result.Trace, ev)
}

func (r *runner) collect() {
	for _, node := range r.nodes {
		state := NodeState{
			ID:        node.ID(),
			Clock:     node.Clock().String(),
			Delivered: []string{},
			Pending:   []string{},
		}
		for _, d := range node.Delivered() {
			state.Delivered = append(state.Delivered, d.MessageID)
		}
		for _, m := range node.Held() {
			state.Pending = append(state.Pending, m.ID())
		}
		r.result.Nodes = append(r.result.Nodes, state)
	}
}

func (r *runner) check() {
	for _, e := range r.scenario.Expect {
		node := r.nodes[e.Node]
		state := r.result.Nodes[e.Node]

		if e.Delivered != nil && !slices.Equal(e.Delivered, state.Delivered) {
			r.result.AddError("node %d: delivered %v, want %v", e.Node, state.Delivered, e.Delivered)
		}
		if e.Pending != nil && *e.Pending != len(state.Pending) {
			r.result.AddError("node %d: %d pending, want %d", e.Node, len(state.Pending), *e.Pending)
		}
		if e.Clock != nil && !node.Clock().Equal(clock.VectorClock(e.Clock)) {
			r.result.AddError("node %d: clock %s, want %s", e.Node, state.Clock, clock.VectorClock(e.Clock))
		}
	}
}
