// Package metrics defines the Prometheus metrics exposed by the service
// and the thin adapters the relay and finalize pipeline count through.
package metrics
