// Package server exposes the monitoring HTTP endpoints: health, session
// status, and Prometheus metrics.
package server
