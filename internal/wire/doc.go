// Package wire encodes causal messages and delivery logs in the protobuf
// wire format so they can travel inside gRPC BytesValue envelopes.
package wire
