// Package dispatch runs the finalize pipeline. Final transcripts are queued
// without bound and processed by a small worker pool that translates each
// segment and delivers the result downstream, so slow translation never
// backpressures the live transcript stream.
package dispatch
