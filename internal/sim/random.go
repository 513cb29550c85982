package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"causalcast/internal/causal"
	"causalcast/internal/clock"
	"causalcast/internal/inbox"
	"causalcast/internal/metrics"
)

// RandomConfig configures RunRandom.
type RandomConfig struct {
	Nodes    int
	Messages int // sent by each node
	Seed     int64
	Jitter   time.Duration
	Logger   log.Logger
}

// RandomResult holds what every node sent and delivered during a random run.
type RandomResult struct {
	Nodes     int
	Sent      []causal.Message
	Delivered [][]causal.Delivery
}

// RunRandom runs a group whose members send concurrently through mailboxes
// that delay each message by a random amount. It returns once every node
// has delivered every message sent by the others, or when ctx is done.
func RunRandom(ctx context.Context, cfg RandomConfig) (*RandomResult, error) {
	if cfg.Nodes <= 0 {
		return nil, fmt.Errorf("%w: %d", causal.ErrInvalidNodeCount, cfg.Nodes)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}

	nodes := make([]*causal.Node, cfg.Nodes)
	boxes := make([]*inbox.Mailbox, cfg.Nodes)
	for i := range nodes {
		node, err := causal.NewNode(i, cfg.Nodes,
			causal.WithLogger(cfg.Logger),
			causal.WithMetrics(metrics.Discard()),
		)
		if err != nil {
			return nil, err
		}
		nodes[i] = node
		boxes[i] = inbox.New(node,
			inbox.WithSize(cfg.Nodes*cfg.Messages+1),
			inbox.WithJitter(cfg.Jitter, cfg.Seed+int64(i)),
			inbox.WithLogger(cfg.Logger),
		)
		boxes[i].Start()
	}
	defer func() {
		for _, box := range boxes {
			box.Stop()
		}
	}()

	var (
		mu   sync.Mutex
		sent []causal.Message
		wg   sync.WaitGroup
	)
	for i := range nodes {
		others := make([]causal.Receiver, 0, cfg.Nodes-1)
		for j, box := range boxes {
			if j != i {
				others = append(others, box)
			}
		}

		wg.Add(1)
		go func(i int, others []causal.Receiver) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(cfg.Seed*7919 + int64(i)))
			for k := 0; k < cfg.Messages; k++ {
				if cfg.Jitter > 0 {
					time.Sleep(time.Duration(rng.Int63n(int64(cfg.Jitter))))
				}
				msg := nodes[i].Send([]byte(fmt.Sprintf("n%d-%d", i, k)), others...)
				mu.Lock()
				sent = append(sent, msg)
				mu.Unlock()
			}
		}(i, others)
	}
	wg.Wait()

	want := (cfg.Nodes - 1) * cfg.Messages
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for !allDelivered(nodes, want) {
		select {
		case <-ctx.Done():
			level.Warn(cfg.Logger).Log("msg", "random run incomplete", "err", ctx.Err())
			return collectRandom(cfg.Nodes, sent, nodes), fmt.Errorf("random run incomplete: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return collectRandom(cfg.Nodes, sent, nodes), nil
}

func allDelivered(nodes []*causal.Node, want int) bool {
	for _, n := range nodes {
		if len(n.Delivered()) < want {
			return false
		}
	}
	return true
}

func collectRandom(n int, sent []causal.Message, nodes []*causal.Node) *RandomResult {
	res := &RandomResult{Nodes: n, Sent: sent}
	for _, node := range nodes {
		res.Delivered = append(res.Delivered, node.Delivered())
	}
	return res
}

// Verify checks that every node delivered each sender's messages exactly once
// and in sequence, and never before the messages they causally depend on.
func (r *RandomResult) Verify() error {
	perSender := make([]uint64, r.Nodes)
	for _, m := range r.Sent {
		perSender[m.Sender()]++
	}

	for node, deliveries := range r.Delivered {
		for i := range deliveries {
			for j := i + 1; j < len(deliveries); j++ {
				if deliveries[i].Clock.Dominates(deliveries[j].Clock) {
					return fmt.Errorf("node %d delivered %s before %s, which it depends on",
						node, deliveries[i].MessageID, deliveries[j].MessageID)
				}
			}
		}

		seen := clock.New(r.Nodes)
		for pos, d := range deliveries {
			if d.Sender == node {
				return fmt.Errorf("node %d delivered its own message %s", node, d.MessageID)
			}
			if d.Clock.Get(d.Sender) != seen.Get(d.Sender)+1 {
				return fmt.Errorf("node %d position %d: message %s from %d has sequence %d, want %d",
					node, pos, d.MessageID, d.Sender, d.Clock.Get(d.Sender), seen.Get(d.Sender)+1)
			}
			for j := 0; j < r.Nodes; j++ {
				if j == d.Sender || j == node {
					continue
				}
				if seen.Get(j) < d.Clock.Get(j) {
					return fmt.Errorf("node %d position %d: message %s delivered before %d message(s) from %d it depends on",
						node, pos, d.MessageID, d.Clock.Get(j)-seen.Get(j), j)
				}
			}
			seen.Observe(d.Sender)
		}

		for j := 0; j < r.Nodes; j++ {
			if j != node && seen.Get(j) != perSender[j] {
				return fmt.Errorf("node %d delivered %d of %d messages from %d", node, seen.Get(j), perSender[j], j)
			}
		}
	}
	return nil
}
