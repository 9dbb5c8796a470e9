// Package audio provides the microphone capture device and the frame queue
// that decouples the device callback from the streaming session. The capture
// callback only appends to the queue and never blocks on network I/O.
package audio
