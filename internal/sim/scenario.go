package sim

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"causalcast/internal/causal"
)

// Scenario scripts a run of a causal broadcast group.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description,omitempty"`

	// Nodes is the group size N.
	Nodes int `yaml:"nodes"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Expect is checked against the final state of each node.
	Expect []Expectation `yaml:"expect,omitempty"`
}

// Step is either a send or a deliver. Exactly one must be set.
type Step struct {
	Send    *SendStep    `yaml:"send,omitempty"`
	Deliver *DeliverStep `yaml:"deliver,omitempty"`
}

// SendStep makes node From multicast a new message. The message is handed to
// the nodes listed in To right away; later deliver steps can hand it to
// others.
type SendStep struct {
	From    int    `yaml:"from"`
	Label   string `yaml:"label"`
	Payload string `yaml:"payload,omitempty"`
	To      []int  `yaml:"to,omitempty"`
}

// DeliverStep hands a previously sent message to the nodes listed in To.
type DeliverStep struct {
	Label string `yaml:"label"`
	To    []int  `yaml:"to"`
}

// Expectation describes the final state of one node. Unset fields are not
// checked.
type Expectation struct {
	Node      int      `yaml:"node"`
	Delivered []string `yaml:"delivered,omitempty"`
	Pending   *int     `yaml:"pending,omitempty"`
	Clock     []uint64 `yaml:"clock,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML, rejecting unknown fields.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks that the scenario is internally consistent.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Nodes <= 0 {
		return fmt.Errorf("%w: %d", causal.ErrInvalidNodeCount, s.Nodes)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	sent := make(map[string]bool)
	for i, step := range s.Steps {
		switch {
		case step.Send != nil && step.Deliver != nil:
			return fmt.Errorf("step %d: send and deliver are mutually exclusive", i)
		case step.Send != nil:
			if err := s.checkNode(step.Send.From); err != nil {
				return fmt.Errorf("step %d: from: %w", i, err)
			}
			if step.Send.Label == "" {
				return fmt.Errorf("step %d: label is required", i)
			}
			if sent[step.Send.Label] {
				return fmt.Errorf("step %d: duplicate label %q", i, step.Send.Label)
			}
			sent[step.Send.Label] = true
			if err := s.checkNodes(step.Send.To); err != nil {
				return fmt.Errorf("step %d: to: %w", i, err)
			}
		case step.Deliver != nil:
			if !sent[step.Deliver.Label] {
				return fmt.Errorf("step %d: label %q has not been sent", i, step.Deliver.Label)
			}
			if len(step.Deliver.To) == 0 {
				return fmt.Errorf("step %d: deliver needs at least one recipient", i)
			}
			if err := s.checkNodes(step.Deliver.To); err != nil {
				return fmt.Errorf("step %d: to: %w", i, err)
			}
		default:
			return fmt.Errorf("step %d: one of send or deliver is required", i)
		}
	}

	for i, e := range s.Expect {
		if err := s.checkNode(e.Node); err != nil {
			return fmt.Errorf("expect %d: %w", i, err)
		}
		if e.Clock != nil && len(e.Clock) != s.Nodes {
			return fmt.Errorf("expect %d: clock has %d slots, want %d", i, len(e.Clock), s.Nodes)
		}
	}
	return nil
}

func (s *Scenario) checkNode(id int) error {
	if id < 0 || id >= s.Nodes {
		return fmt.Errorf("node %d out of range [0, %d)", id, s.Nodes)
	}
	return nil
}

func (s *Scenario) checkNodes(ids []int) error {
	for _, id := range ids {
		if err := s.checkNode(id); err != nil {
			return err
		}
	}
	return nil
}
