package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/takikomiudon/limbus-realtime-translation/internal/audio"
	"github.com/takikomiudon/limbus-realtime-translation/internal/engine"
	"github.com/takikomiudon/limbus-realtime-translation/internal/session"
)

type fakeStream struct {
	mu        sync.Mutex
	sent      [][]byte
	results   chan engine.Result
	closeOnce sync.Once

	// sendErr, when set, fails every Send without recording the payload.
	sendErr error

	// onSend runs on the send loop goroutine after each payload is recorded.
	onSend func(s *fakeStream, payload []byte)
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan engine.Result, 32)}
}

func (s *fakeStream) Send(payload []byte) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	cp := append([]byte(nil), payload...)
	s.mu.Lock()
	s.sent = append(s.sent, cp)
	s.mu.Unlock()
	if s.onSend != nil {
		s.onSend(s, cp)
	}
	return nil
}

func (s *fakeStream) Results() <-chan engine.Result { return s.results }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.results) })
	return nil
}

func (s *fakeStream) emit(r engine.Result) {
	s.results <- r
}

func (s *fakeStream) sentPayloads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeRecognizer struct {
	mu      sync.Mutex
	streams []*fakeStream
	err     error
	opened  int
}

func (f *fakeRecognizer) OpenStream(ctx context.Context, cfg engine.StreamConfig) (engine.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.opened >= len(f.streams) {
		return nil, errors.New("no scripted stream left")
	}
	s := f.streams[f.opened]
	f.opened++
	return s, nil
}

type recordingSink struct {
	mu       sync.Mutex
	starts   []int64
	breaks   int
	results  []TranscriptResult
	stopping bool
}

func (s *recordingSink) SegmentStart(offsetMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, offsetMs)
}

func (s *recordingSink) SegmentBreak() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breaks++
}

func (s *recordingSink) Result(r TranscriptResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *recordingSink) Stopping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
}

type recordingDispatcher struct {
	mu        sync.Mutex
	submitted []TranscriptResult
}

func (d *recordingDispatcher) Submit(text string, timestampMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, TranscriptResult{Text: text, TimestampMs: timestampMs})
}

func (d *recordingDispatcher) get() []TranscriptResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]TranscriptResult, len(d.submitted))
	copy(out, d.submitted)
	return out
}

func pushFrames(q *audio.FrameQueue, count, size int) {
	for i := 0; i < count; i++ {
		frame := make([]byte, size)
		for j := range frame {
			frame[j] = byte(i)
		}
		q.Push(frame)
	}
}

func runRelay(t *testing.T, r *Relay) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not finish in time")
		return nil
	}
}

func TestRunStopsOnStopCommand(t *testing.T) {
	queue := audio.NewFrameQueue()
	sess := session.New(queue, 240000)
	pushFrames(queue, 1, 2)

	stream := newFakeStream()
	stream.onSend = func(s *fakeStream, payload []byte) {
		s.emit(engine.Result{Transcript: "exit", IsFinal: true, EndTime: time.Second})
	}

	sink := &recordingSink{}
	dispatcher := &recordingDispatcher{}
	r := New(sess, &fakeRecognizer{streams: []*fakeStream{stream}}, dispatcher, sink,
		NewCommandMatcher([]string{"exit", "quit"}), engine.StreamConfig{}, nil, nil)

	if err := runRelay(t, r); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if !sink.stopping {
		t.Error("expected Stopping event")
	}
	if !sess.Closed() {
		t.Error("expected session to be closed")
	}

	submitted := dispatcher.get()
	if len(submitted) != 1 {
		t.Fatalf("expected 1 submitted transcript, got %d", len(submitted))
	}
	if submitted[0].Text != "exit" || submitted[0].TimestampMs != 1000 {
		t.Errorf("unexpected submission %+v", submitted[0])
	}
}

func TestRunStopsWhenInputCloses(t *testing.T) {
	queue := audio.NewFrameQueue()
	queue.Close()
	sess := session.New(queue, 240000)

	stream := newFakeStream()
	sink := &recordingSink{}
	r := New(sess, &fakeRecognizer{streams: []*fakeStream{stream}}, &recordingDispatcher{},
		sink, nil, engine.StreamConfig{}, nil, nil)

	if err := runRelay(t, r); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if sink.stopping {
		t.Error("input close is not a stop command")
	}
}

func TestRunDialFailureIsFatal(t *testing.T) {
	queue := audio.NewFrameQueue()
	sess := session.New(queue, 240000)

	r := New(sess, &fakeRecognizer{err: errors.New("connection refused")},
		&recordingDispatcher{}, nil, nil, engine.StreamConfig{}, nil, nil)

	err := runRelay(t, r)
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected dial error, got %v", err)
	}
}

func TestRunSendFailureRollsSegment(t *testing.T) {
	queue := audio.NewFrameQueue()
	sess := session.New(queue, 240000)
	pushFrames(queue, 2, 2)

	// First connection: the write side notices the drop while the read side
	// stays blocked.
	stream1 := newFakeStream()
	stream1.sendErr = errors.New("broken pipe")

	// Second connection is healthy; answer its replay with a stop command.
	stream2 := newFakeStream()
	stream2.onSend = func(s *fakeStream, payload []byte) {
		if len(s.sentPayloads()) == 1 {
			s.emit(engine.Result{Transcript: "quit", IsFinal: true, EndTime: 500 * time.Millisecond})
		}
	}

	sink := &recordingSink{}
	dispatcher := &recordingDispatcher{}
	r := New(sess, &fakeRecognizer{streams: []*fakeStream{stream1, stream2}}, dispatcher, sink,
		NewCommandMatcher([]string{"quit"}), engine.StreamConfig{}, nil, nil)

	if err := runRelay(t, r); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := sess.RestartCounter(); got != 1 {
		t.Fatalf("expected the broken connection to roll the segment, restarts=%d", got)
	}
	if !sink.stopping {
		t.Error("expected the session to finish via the stop command")
	}

	submitted := dispatcher.get()
	if len(submitted) != 1 || submitted[0].Text != "quit" {
		t.Fatalf("expected the post-restart transcript, got %+v", submitted)
	}
}

func TestRunWallClockLimitRollsSegment(t *testing.T) {
	const limitMs = 200
	const frameCount = 2
	const frameSize = 2

	queue := audio.NewFrameQueue()
	sess := session.New(queue, limitMs)
	pushFrames(queue, frameCount, frameSize)

	// First connection: a final inside the limit, then results keep coming
	// after the wall clock passes it; those must be abandoned.
	stream1 := newFakeStream()
	total := 0
	stream1.onSend = func(s *fakeStream, payload []byte) {
		total += len(payload)
		if total >= frameCount*frameSize {
			s.emit(engine.Result{Transcript: "첫번째", IsFinal: true, EndTime: 100 * time.Millisecond})
			time.Sleep(250 * time.Millisecond)
			s.emit(engine.Result{Transcript: "지각", IsFinal: false, EndTime: 150 * time.Millisecond})
		}
	}

	stream2 := newFakeStream()
	stream2.onSend = func(s *fakeStream, payload []byte) {
		if len(s.sentPayloads()) == 1 {
			s.emit(engine.Result{Transcript: "quit", IsFinal: true, EndTime: 500 * time.Millisecond})
		}
	}

	sink := &recordingSink{}
	dispatcher := &recordingDispatcher{}
	r := New(sess, &fakeRecognizer{streams: []*fakeStream{stream1, stream2}}, dispatcher, sink,
		NewCommandMatcher([]string{"quit"}), engine.StreamConfig{}, nil, nil)

	if err := runRelay(t, r); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := sess.RestartCounter(); got != 1 {
		t.Fatalf("expected exactly one restart, got %d", got)
	}
	if len(sink.starts) != 2 || sink.starts[1] != limitMs {
		t.Errorf("unexpected segment starts %v", sink.starts)
	}

	// The result arriving past the limit is abandoned, never emitted.
	for _, result := range sink.results {
		if result.Text == "지각" {
			t.Error("result past the wall-clock limit must be abandoned")
		}
	}

	// The final at 100ms of a 2-frame, 200ms segment anchors the replay at
	// frame 1, so the bridging offset is 100ms.
	submitted := dispatcher.get()
	if len(submitted) != 2 {
		t.Fatalf("expected 2 submitted transcripts, got %+v", submitted)
	}
	if submitted[0].Text != "첫번째" || submitted[0].TimestampMs != 100 {
		t.Errorf("unexpected first submission %+v", submitted[0])
	}
	// 500ms into the second segment: 500 - 100 + 200*1.
	if submitted[1].Text != "quit" || submitted[1].TimestampMs != 600 {
		t.Errorf("unexpected second submission %+v", submitted[1])
	}
}

func TestRunRestartReplaysBridgingTail(t *testing.T) {
	const limitMs = 10000
	const frameCount = 10
	const frameSize = 2

	queue := audio.NewFrameQueue()
	sess := session.New(queue, limitMs)
	pushFrames(queue, frameCount, frameSize)

	// First connection: once all live audio has arrived, finalize a result
	// at 7000ms and drop the connection.
	stream1 := newFakeStream()
	total := 0
	stream1.onSend = func(s *fakeStream, payload []byte) {
		total += len(payload)
		if total >= frameCount*frameSize {
			s.emit(engine.Result{Transcript: "안녕하세요", IsFinal: true, EndTime: 7 * time.Second})
			_ = s.Close()
		}
	}

	// Second connection: the first payload must be the bridging tail; answer
	// it with a stop command.
	stream2 := newFakeStream()
	stream2.onSend = func(s *fakeStream, payload []byte) {
		if len(s.sentPayloads()) == 1 {
			s.emit(engine.Result{Transcript: "quit", IsFinal: true, EndTime: 500 * time.Millisecond})
		}
	}

	sink := &recordingSink{}
	dispatcher := &recordingDispatcher{}
	r := New(sess, &fakeRecognizer{streams: []*fakeStream{stream1, stream2}}, dispatcher, sink,
		NewCommandMatcher([]string{"quit"}), engine.StreamConfig{}, nil, nil)

	if err := runRelay(t, r); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if got := sess.RestartCounter(); got != 1 {
		t.Fatalf("expected 1 restart, got %d", got)
	}

	// Segment banners carry the session-global offset of each connection.
	if len(sink.starts) != 2 || sink.starts[0] != 0 || sink.starts[1] != limitMs {
		t.Errorf("unexpected segment starts %v", sink.starts)
	}

	// The last result before the drop was final, so no visual break.
	if sink.breaks != 0 {
		t.Errorf("expected no segment break, got %d", sink.breaks)
	}

	// With the final at 7000ms of a 10-frame, 10000ms segment, the replay
	// resumes at frame 7 and the bridging offset becomes 3000ms.
	tail := stream2.sentPayloads()[0]
	want := []byte{7, 7, 8, 8, 9, 9}
	if string(tail) != string(want) {
		t.Errorf("unexpected bridging tail % d, want % d", tail, want)
	}

	submitted := dispatcher.get()
	if len(submitted) != 2 {
		t.Fatalf("expected 2 submitted transcripts, got %d", len(submitted))
	}
	if submitted[0].Text != "안녕하세요" || submitted[0].TimestampMs != 7000 {
		t.Errorf("unexpected first submission %+v", submitted[0])
	}
	// 500ms into the second connection: 500 - 3000 + 10000.
	if submitted[1].Text != "quit" || submitted[1].TimestampMs != 7500 {
		t.Errorf("unexpected second submission %+v", submitted[1])
	}
}
