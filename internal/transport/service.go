package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	serviceName = "causalcast.Causal"

	deliverMethod   = "/causalcast.Causal/Deliver"
	broadcastMethod = "/causalcast.Causal/Broadcast"
	logMethod       = "/causalcast.Causal/Log"
)

// CausalServer is the server API for the Causal service.
type CausalServer interface {
	// Deliver hands a wire-encoded message from a peer to this node.
	Deliver(context.Context, *wrapperspb.BytesValue) (*emptypb.Empty, error)
	// Broadcast sends a payload from this node to every other member and
	// returns the wire-encoded message.
	Broadcast(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	// Log returns the wire-encoded delivery log of this node.
	Log(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// RegisterCausalServer registers srv with s.
func RegisterCausalServer(s grpc.ServiceRegistrar, srv CausalServer) {
	s.RegisterService(&causalServiceDesc, srv)
}

var causalServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CausalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: deliverHandler},
		{MethodName: "Broadcast", Handler: broadcastHandler},
		{MethodName: "Log", Handler: logHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "causalcast/causal.proto",
}

func deliverHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CausalServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deliverMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CausalServer).Deliver(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func broadcastHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CausalServer).Broadcast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: broadcastMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CausalServer).Broadcast(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func logHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CausalServer).Log(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: logMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(CausalServer).Log(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// CausalClient is the client API for the Causal service.
type CausalClient interface {
	Deliver(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Broadcast(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Log(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type causalClient struct {
	cc grpc.ClientConnInterface
}

// NewCausalClient creates a client on top of cc.
func NewCausalClient(cc grpc.ClientConnInterface) CausalClient {
	return &causalClient{cc}
}

func (c *causalClient) Deliver(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, deliverMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *causalClient) Broadcast(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, broadcastMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *causalClient) Log(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, logMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
