package session

import (
	"math"
	"sync"
	"time"

	"github.com/takikomiudon/limbus-realtime-translation/internal/audio"
)

// Session holds the state of one logical transcription run across the
// connection restarts forced by the engine's per-connection duration limit.
// All engine-relative times are milliseconds; CorrectedTime converts them to
// the session-global axis.
type Session struct {
	queue   *audio.FrameQueue
	limitMs int

	mu                    sync.Mutex
	restartCounter        int
	startTime             time.Time
	bridgingOffsetMs      int
	resultEndTimeMs       int
	isFinalEndTimeMs      int
	finalRequestEndTimeMs int
	historyCurrent        [][]byte
	historyPrevious       [][]byte
	closed                bool
	lastResultWasFinal    bool
	newSegment            bool
}

// Stats is a point-in-time snapshot of session state for monitoring.
type Stats struct {
	RestartCounter     int   `json:"restart_counter"`
	BridgingOffsetMs   int   `json:"bridging_offset_ms"`
	IsFinalEndTimeMs   int   `json:"is_final_end_time_ms"`
	SegmentFrames      int   `json:"segment_frames"`
	PreviousFrames     int   `json:"previous_frames"`
	Closed             bool  `json:"closed"`
	SegmentElapsedMs   int64 `json:"segment_elapsed_ms"`
	LastResultWasFinal bool  `json:"last_result_was_final"`
}

// New creates a session reading frames from queue, with the engine's hard
// per-connection limit in milliseconds.
func New(queue *audio.FrameQueue, limitMs int) *Session {
	return &Session{
		queue:     queue,
		limitMs:   limitMs,
		startTime: time.Now(),
	}
}

// BeginSegment runs the bridging algorithm once at the start of a new
// connection attempt. When a previous segment exists it returns the tail of
// its audio history, starting at the last finalized result, coalesced into a
// single payload, and records the bridging offset used for timestamp
// correction in the new segment. Returns nil when there is nothing to replay.
func (s *Session) BeginSegment() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.newSegment {
		return nil
	}
	s.newSegment = false

	if len(s.historyPrevious) == 0 {
		return nil
	}

	start, offset := bridgingReplay(len(s.historyPrevious), s.limitMs,
		s.finalRequestEndTimeMs, s.bridgingOffsetMs)
	s.bridgingOffsetMs = offset

	var payload []byte
	for _, frame := range s.historyPrevious[start:] {
		payload = append(payload, frame...)
	}
	return payload
}

// NextPayload assembles the next outbound payload from freshly captured
// audio: one blocking frame read plus whatever backlog is buffered, coalesced
// into a single byte slice. ok is false once the end-of-stream marker is
// reached; the relay then terminates the session.
func (s *Session) NextPayload() ([]byte, bool) {
	frame, ok := s.queue.Pop()
	if !ok {
		return nil, false
	}
	payload := append([]byte(nil), frame...)

	s.mu.Lock()
	s.historyCurrent = append(s.historyCurrent, frame)
	s.mu.Unlock()

	// Coalesce any backlog so a slow network send does not let the queue
	// fall behind one frame per round trip.
	for {
		frame, ok, _ := s.queue.TryPop()
		if !ok {
			break
		}
		payload = append(payload, frame...)

		s.mu.Lock()
		s.historyCurrent = append(s.historyCurrent, frame)
		s.mu.Unlock()
	}

	return payload, true
}

// bridgingReplay computes the index into the previous segment's history from
// which frames are replayed, and the bridging offset used for timestamp
// correction in the new segment. The replay index is clamped into the valid
// range so a previous segment far shorter than the connection limit can never
// produce an out-of-range slice.
func bridgingReplay(prevLen, limitMs, finalRequestEndMs, bridgingOffsetMs int) (start, offsetMs int) {
	chunkDurationMs := float64(limitMs) / float64(prevLen)

	if bridgingOffsetMs < 0 {
		bridgingOffsetMs = 0
	}
	if bridgingOffsetMs > finalRequestEndMs {
		bridgingOffsetMs = finalRequestEndMs
	}

	start = int(math.Round(float64(finalRequestEndMs-bridgingOffsetMs) / chunkDurationMs))
	if start < 0 {
		start = 0
	}
	if start > prevLen {
		start = prevLen
	}

	offsetMs = int(math.Round(float64(prevLen-start) * chunkDurationMs))
	return start, offsetMs
}

// RecordResult updates the engine-relative time bookkeeping for one result.
func (s *Session) RecordResult(endTimeMs int, isFinal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resultEndTimeMs = endTimeMs
	if isFinal {
		s.isFinalEndTimeMs = endTimeMs
		s.lastResultWasFinal = true
	} else {
		s.lastResultWasFinal = false
	}
}

// CorrectedTime maps an engine-relative end time to the session-global axis.
func (s *Session) CorrectedTime(endTimeMs int) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(endTimeMs) - int64(s.bridgingOffsetMs) + int64(s.limitMs)*int64(s.restartCounter)
}

// RollSegment performs the bookkeeping for a forced reconnection: the
// finalized end time of the finished segment becomes the replay anchor, the
// audio histories swap, and the restart counter advances. The next call to
// BeginSegment emits the bridging tail.
func (s *Session) RollSegment() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resultEndTimeMs > 0 {
		s.finalRequestEndTimeMs = s.isFinalEndTimeMs
	}
	s.resultEndTimeMs = 0
	s.historyPrevious = s.historyCurrent
	s.historyCurrent = nil
	s.restartCounter++
	s.newSegment = true
	s.startTime = time.Now()
}

// Close marks the session terminal and releases any blocked queue reader.
// It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.queue.Close()
}

// Closed reports whether the session has been terminated.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// SegmentElapsed returns the wall-clock time since the current connection began.
func (s *Session) SegmentElapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

// RestartCounter returns the number of forced reconnections so far.
func (s *Session) RestartCounter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restartCounter
}

// LastResultWasFinal reports whether the most recent result was finalized.
// It drives the trailing-newline behavior between segments.
func (s *Session) LastResultWasFinal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResultWasFinal
}

// LimitMs returns the per-connection duration limit in milliseconds.
func (s *Session) LimitMs() int {
	return s.limitMs
}

// GetStats returns a snapshot of the session state.
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		RestartCounter:     s.restartCounter,
		BridgingOffsetMs:   s.bridgingOffsetMs,
		IsFinalEndTimeMs:   s.isFinalEndTimeMs,
		SegmentFrames:      len(s.historyCurrent),
		PreviousFrames:     len(s.historyPrevious),
		Closed:             s.closed,
		SegmentElapsedMs:   time.Since(s.startTime).Milliseconds(),
		LastResultWasFinal: s.lastResultWasFinal,
	}
}
