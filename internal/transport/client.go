package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"causalcast/internal/causal"
	"causalcast/internal/wire"
)

// DefaultTimeout bounds a single RPC to a peer.
const DefaultTimeout = 5 * time.Second

// ClientManager manages gRPC clients to peer nodes.
type ClientManager struct {
	mu       sync.RWMutex
	conns    map[string]*grpc.ClientConn
	clients  map[string]CausalClient
	dialOpts []grpc.DialOption
}

// NewClientManager creates a new client manager. Extra dial options are
// appended to the default insecure transport credentials.
func NewClientManager(opts ...grpc.DialOption) *ClientManager {
	return &ClientManager{
		conns:    make(map[string]*grpc.ClientConn),
		clients:  make(map[string]CausalClient),
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
	}
}

// GetClient returns a client for the given node address.
// Creates a new connection if one doesn't exist.
func (cm *ClientManager) GetClient(addr string) (CausalClient, error) {
	cm.mu.RLock()
	client, exists := cm.clients[addr]
	cm.mu.RUnlock()

	if exists {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	// Double-check after acquiring write lock
	if client, exists := cm.clients[addr]; exists {
		return client, nil
	}

	conn, err := grpc.NewClient(addr, cm.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	client = NewCausalClient(conn)
	cm.conns[addr] = conn
	cm.clients[addr] = client
	return client, nil
}

// Close closes all client connections.
func (cm *ClientManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, conn := range cm.conns {
		conn.Close()
	}
	cm.conns = make(map[string]*grpc.ClientConn)
	cm.clients = make(map[string]CausalClient)
}

// Peer delivers messages to a remote node. It implements causal.Receiver.
type Peer struct {
	ID      int
	Addr    string
	clients *ClientManager
	timeout time.Duration
}

// NewPeer creates a peer reached through clients.
func NewPeer(id int, addr string, clients *ClientManager, timeout time.Duration) *Peer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Peer{
		ID:      id,
		Addr:    addr,
		clients: clients,
		timeout: timeout,
	}
}

// Receive sends msg to the remote node.
func (p *Peer) Receive(msg causal.Message) error {
	client, err := p.clients.GetClient(p.Addr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if _, err := client.Deliver(ctx, wrapperspb.Bytes(wire.MarshalMessage(msg))); err != nil {
		return fmt.Errorf("deliver to node %d at %s: %w", p.ID, p.Addr, err)
	}
	return nil
}

// Broadcast asks the node behind client to multicast payload and returns the message it sent.
func Broadcast(ctx context.Context, client CausalClient, payload []byte) (causal.Message, error) {
	resp, err := client.Broadcast(ctx, wrapperspb.Bytes(payload))
	if err != nil {
		return causal.Message{}, err
	}
	return wire.UnmarshalMessage(resp.GetValue())
}

// FetchLog returns the delivery log of the node behind client.
func FetchLog(ctx context.Context, client CausalClient) ([]causal.Delivery, error) {
	resp, err := client.Log(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, err
	}
	return wire.UnmarshalLog(resp.GetValue())
}
