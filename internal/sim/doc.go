// Package sim runs causal broadcast groups in-process.
//
// Scenarios are YAML files that script which node sends what and in which
// order each message reaches each node, so arbitrary reorderings can be
// replayed deterministically. Run records a trace of every send, hold,
// delivery and drop and checks the scenario's expectations against the final
// state of each node. RunRandom drives a concurrent group through jittered
// mailboxes instead, for property checks.
package sim
