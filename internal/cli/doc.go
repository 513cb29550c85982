// Package cli implements the causalcast command line: serving a node,
// broadcasting through a running node, reading its delivery log and running
// simulation scenarios.
package cli
