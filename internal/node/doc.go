// Package node runs a causal broadcast member as a gRPC process.
package node
