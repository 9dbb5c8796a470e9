// Package engine provides the websocket client for the external real-time
// transcription engine. Outbound traffic is a one-time JSON configuration
// frame followed by binary PCM payloads; inbound traffic is JSON result
// frames carrying interim/final transcripts with engine-relative end times.
package engine
