package sim

import (
	"fmt"
	"strings"
)

// Trace event types.
const (
	EventSend    = "send"
	EventDeliver = "deliver"
	EventHold    = "hold"
	EventDrop    = "drop"
	EventReject  = "reject"
)

// TraceEvent records one step of a run. Clock is the message's vector clock;
// Local is the receiving node's clock after a hold or drop.
type TraceEvent struct {
	Seq    int    `json:"seq"`
	Type   string `json:"type"`
	Node   int    `json:"node"`
	Label  string `json:"label"`
	Sender int    `json:"sender"`
	Clock  string `json:"clock"`
	Local  string `json:"local,omitempty"`
	Error  string `json:"error,omitempty"`
}

// String formats the event as a single trace line.
func (e TraceEvent) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d  node %d  %-7s  %s from %d %s", e.Seq, e.Node, e.Type, e.Label, e.Sender, e.Clock)
	if e.Local != "" {
		fmt.Fprintf(&b, " local %s", e.Local)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, ": %s", e.Error)
	}
	return b.String()
}

// NodeState is the final state of one node.
type NodeState struct {
	ID        int      `json:"id"`
	Clock     string   `json:"clock"`
	Delivered []string `json:"delivered"`
	Pending   []string `json:"pending"`
}

// Result is the outcome of a scenario run.
type Result struct {
	Scenario string       `json:"scenario"`
	Pass     bool         `json:"pass"`
	Trace    []TraceEvent `json:"trace"`
	Nodes    []NodeState  `json:"nodes"`
	Errors   []string     `json:"errors,omitempty"`
}

// NewResult creates a passing result with no events.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		Pass:     true,
		Trace:    []TraceEvent{},
		Nodes:    []NodeState{},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Text renders the trace and final node states for terminals.
func (r *Result) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", r.Scenario)
	for _, e := range r.Trace {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	for _, n := range r.Nodes {
		fmt.Fprintf(&b, "node %d  clock %s  delivered [%s]  pending [%s]\n",
			n.ID, n.Clock, strings.Join(n.Delivered, " "), strings.Join(n.Pending, " "))
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "FAIL %s\n", e)
	}
	return b.String()
}
