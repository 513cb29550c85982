package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"causalcast/internal/causal"
	"causalcast/internal/clock"
	"causalcast/internal/inbox"
)

const bufAddr = "passthrough:///bufnet"

// app exposes a causal node through the Application interface.
type app struct {
	node  *causal.Node
	peers []causal.Receiver
}

func (a *app) Broadcast(payload []byte) causal.Message {
	return a.node.Send(payload, a.peers...)
}

func (a *app) Log() []causal.Delivery {
	return a.node.Delivered()
}

func startServer(t *testing.T, node *causal.Node, inbound causal.Receiver) *ClientManager {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterCausalServer(srv, NewServer(inbound, &app{node: node}, log.NewNopLogger()))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cm := NewClientManager(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	t.Cleanup(cm.Close)
	return cm
}

func TestPeer_DeliversOverGRPC(t *testing.T) {
	sender, err := causal.NewNode(0, 2)
	require.NoError(t, err)
	receiver, err := causal.NewNode(1, 2)
	require.NoError(t, err)

	cm := startServer(t, receiver, receiver)
	peer := NewPeer(1, bufAddr, cm, time.Second)

	sender.Send([]byte("A"), peer)
	sender.Send([]byte("B"), peer)

	delivered := receiver.DeliveredPayloads()
	require.Len(t, delivered, 2)
	assert.Equal(t, "A", string(delivered[0]))
	assert.Equal(t, "B", string(delivered[1]))
}

func TestPeer_OutOfRangeSenderIsInvalidArgument(t *testing.T) {
	receiver, err := causal.NewNode(1, 2)
	require.NoError(t, err)

	cm := startServer(t, receiver, receiver)
	peer := NewPeer(1, bufAddr, cm, time.Second)

	err = peer.Receive(causal.NewMessage("bad", 5, nil, clock.VectorClock{0, 0}))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Equal(t, 0, receiver.Pending())
}

func TestServer_MalformedMessage(t *testing.T) {
	receiver, err := causal.NewNode(1, 2)
	require.NoError(t, err)

	cm := startServer(t, receiver, receiver)
	client, err := cm.GetClient(bufAddr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = client.Deliver(ctx, wrapperspb.Bytes([]byte{0xff}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_ClosedInboxIsUnavailable(t *testing.T) {
	receiver, err := causal.NewNode(1, 2)
	require.NoError(t, err)
	mb := inbox.New(receiver)
	mb.Start()
	mb.Stop()

	cm := startServer(t, receiver, mb)
	peer := NewPeer(1, bufAddr, cm, time.Second)

	err = peer.Receive(causal.NewMessage("late", 0, nil, clock.VectorClock{1, 0}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestBroadcastAndFetchLog(t *testing.T) {
	node, err := causal.NewNode(0, 2)
	require.NoError(t, err)

	cm := startServer(t, node, node)
	client, err := cm.GetClient(bufAddr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := Broadcast(ctx, client, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, msg.Sender())
	assert.Equal(t, []byte("hello"), msg.Payload())
	assert.True(t, msg.Clock().Equal(clock.VectorClock{1, 0}))

	entries, err := FetchLog(ctx, client)
	require.NoError(t, err)
	assert.Empty(t, entries, "a sender does not deliver its own broadcast")
}

func TestClientManager_CachesClients(t *testing.T) {
	cm := NewClientManager()
	defer cm.Close()

	c1, err := cm.GetClient("127.0.0.1:1")
	require.NoError(t, err)
	c2, err := cm.GetClient("127.0.0.1:1")
	require.NoError(t, err)

	assert.Same(t, c1, c2)
}
