package node

import (
	"fmt"
	"net"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"causalcast/internal/causal"
	"causalcast/internal/config"
	"causalcast/internal/inbox"
	"causalcast/internal/metrics"
	"causalcast/internal/transport"
)

// Node represents a single causal broadcast process: the causal core, its
// inbound mailbox, the gRPC server and one outbound mailbox per remote member.
type Node struct {
	cfg    *config.Config
	logger log.Logger

	core     *causal.Node
	inbound  *inbox.Mailbox
	outbound []*inbox.Mailbox
	peers    []causal.Receiver
	clients  *transport.ClientManager

	grpcServer *grpc.Server
	health     *health.Server

	stopOnce sync.Once
}

// New creates a node from a validated configuration. Extra dial options are
// used for connections to the other members.
func New(cfg *config.Config, logger log.Logger, m *metrics.Metrics, dialOpts ...grpc.DialOption) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.ApplyDefaults()
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if m == nil {
		m = metrics.Discard()
	}

	n := &Node{
		cfg:     cfg,
		logger:  log.With(logger, "node", cfg.NodeID),
		clients: transport.NewClientManager(dialOpts...),
	}

	core, err := causal.NewNode(cfg.NodeID, cfg.TotalNodes(),
		causal.WithLogger(logger),
		causal.WithMetrics(m),
		causal.WithDeliveryHook(n.onDeliver),
	)
	if err != nil {
		return nil, err
	}
	n.core = core
	n.inbound = inbox.New(core, inbox.WithSize(cfg.InboxSize), inbox.WithLogger(n.logger))

	for _, member := range cfg.Members() {
		if member.ID == cfg.NodeID {
			continue
		}
		peer := transport.NewPeer(member.ID, member.Addr, n.clients, cfg.RPCTimeout)
		box := inbox.New(peer,
			inbox.WithSize(cfg.InboxSize),
			inbox.WithLogger(log.With(n.logger, "peer", member.ID)),
		)
		n.outbound = append(n.outbound, box)
		n.peers = append(n.peers, box)
	}

	n.grpcServer = grpc.NewServer()
	transport.RegisterCausalServer(n.grpcServer, transport.NewServer(n.inbound, n, n.logger))

	n.health = health.NewServer()
	healthpb.RegisterHealthServer(n.grpcServer, n.health)

	// Enable gRPC reflection for grpcurl
	reflection.Register(n.grpcServer)

	return n, nil
}

// ID returns the node ID.
func (n *Node) ID() int {
	return n.cfg.NodeID
}

// Core returns the causal node driven by this process.
func (n *Node) Core() *causal.Node {
	return n.core
}

// Start listens on the configured address and serves until Stop is called.
func (n *Node) Start() error {
	lis, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", n.cfg.ListenAddr, err)
	}
	return n.Serve(lis)
}

// Serve starts the mailboxes and serves gRPC on lis. It blocks until the
// server stops.
func (n *Node) Serve(lis net.Listener) error {
	n.inbound.Start()
	for _, box := range n.outbound {
		box.Start()
	}
	n.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	level.Info(n.logger).Log("msg", "starting node", "addr", lis.Addr().String(), "members", n.core.N())

	if err := n.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully stops the node. Queued messages are discarded.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		level.Info(n.logger).Log("msg", "stopping node")
		n.health.Shutdown()
		n.grpcServer.GracefulStop()
		n.inbound.Stop()
		for _, box := range n.outbound {
			box.Stop()
		}
		n.clients.Close()
	})
}

// Broadcast sends payload to every other member.
func (n *Node) Broadcast(payload []byte) causal.Message {
	return n.core.Send(payload, n.peers...)
}

// Log returns the messages delivered so far, in delivery order.
func (n *Node) Log() []causal.Delivery {
	return n.core.Delivered()
}

func (n *Node) onDeliver(d causal.Delivery) {
	level.Info(n.logger).Log(
		"msg", "delivered",
		"id", d.MessageID,
		"sender", d.Sender,
		"clock", d.Clock,
		"payload_bytes", len(d.Payload),
	)
}
