// Package session implements the resumable streaming session buffer. It
// assembles outbound audio payloads for one engine connection at a time,
// retains the audio history of the current and previous connection, and
// computes the bridging offset that reconstructs a continuous timestamp axis
// across forced reconnections.
package session
