// Package relay drives a transcription session against the engine: it
// streams captured audio, restarts the connection before the engine's
// per-connection duration limit, replays bridging audio across restarts,
// and routes corrected results to the display and the finalize pipeline.
package relay
