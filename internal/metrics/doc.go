// Package metrics exposes causal delivery counters through go-kit metrics
// backed by Prometheus.
package metrics
