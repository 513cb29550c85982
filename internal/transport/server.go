package transport

import (
	"context"
	"errors"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"causalcast/internal/causal"
	"causalcast/internal/inbox"
	"causalcast/internal/wire"
)

// Application is the node-side API reachable by clients.
type Application interface {
	Broadcast(payload []byte) causal.Message
	Log() []causal.Delivery
}

// Server implements the Causal gRPC service.
type Server struct {
	inbound causal.Receiver
	app     Application
	logger  log.Logger
}

// NewServer creates a server that hands peer messages to inbound and client
// requests to app.
func NewServer(inbound causal.Receiver, app Application, logger log.Logger) *Server {
	return &Server{
		inbound: inbound,
		app:     app,
		logger:  logger,
	}
}

// Deliver handles peer-to-peer message hand-off.
func (s *Server) Deliver(ctx context.Context, req *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	msg, err := wire.UnmarshalMessage(req.GetValue())
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to decode message", "err", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.inbound.Receive(msg); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Broadcast handles client requests to multicast a payload.
func (s *Server) Broadcast(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	msg := s.app.Broadcast(req.GetValue())
	level.Info(s.logger).Log("msg", "broadcast", "id", msg.ID(), "clock", msg.Clock())
	return wrapperspb.Bytes(wire.MarshalMessage(msg)), nil
}

// Log returns the delivery log.
func (s *Server) Log(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return wrapperspb.Bytes(wire.MarshalLog(s.app.Log())), nil
}

// toStatus maps receive errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case causal.IsProtocolViolation(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, inbox.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
