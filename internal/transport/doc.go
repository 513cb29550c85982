// Package transport carries causal messages between processes over gRPC.
//
// The service exchanges protobuf well-known wrapper messages whose bytes are
// encoded with package wire, so no generated code is required.
package transport
