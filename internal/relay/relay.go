package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/takikomiudon/limbus-realtime-translation/internal/engine"
	"github.com/takikomiudon/limbus-realtime-translation/internal/session"
)

var (
	errStopRequested = errors.New("stop command received")
	errInputClosed   = errors.New("audio input closed")
	errLimitReached  = errors.New("connection limit reached")
)

// TranscriptResult is one live result on the session-global time axis.
type TranscriptResult struct {
	Text        string
	IsFinal     bool
	TimestampMs int64
}

// Sink receives live transcript events in arrival order, from a single
// goroutine.
type Sink interface {
	SegmentStart(offsetMs int64)
	SegmentBreak()
	Result(result TranscriptResult)
	Stopping()
}

// Dispatcher accepts finalized transcripts for the finalize pipeline.
type Dispatcher interface {
	Submit(text string, timestampMs int64)
}

// Metrics receives relay counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	PayloadSent(bytes int)
	ResultReceived(isFinal bool)
	SessionRestarted()
}

// Relay drives one transcription session: it streams captured audio to the
// engine, reconnects before the engine's per-connection limit, corrects
// result timestamps, and hands finalized transcripts to the dispatcher.
type Relay struct {
	session    *session.Session
	recognizer engine.Recognizer
	dispatcher Dispatcher
	sink       Sink
	matcher    *CommandMatcher
	streamCfg  engine.StreamConfig
	metrics    Metrics
	logger     *slog.Logger
}

// New creates a relay over the given session.
func New(sess *session.Session, recognizer engine.Recognizer, dispatcher Dispatcher, sink Sink, matcher *CommandMatcher, streamCfg engine.StreamConfig, metrics Metrics, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		session:    sess,
		recognizer: recognizer,
		dispatcher: dispatcher,
		sink:       sink,
		matcher:    matcher,
		streamCfg:  streamCfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// payload is one coalesced audio chunk labeled with the restart epoch it
// was captured under.
type payload struct {
	data  []byte
	epoch int
}

// Run executes the session until the audio input closes, a stop command
// arrives, or ctx is canceled. It returns nil on a clean stop.
func (r *Relay) Run(ctx context.Context) error {
	payloads := make(chan payload, 1)
	go r.pump(payloads)

	// Closing the session unblocks the pump; the drain lets it finish even
	// when the send loop is no longer reading.
	defer func() {
		r.session.Close()
		go func() {
			for range payloads {
			}
		}()
	}()

	for {
		if r.sink != nil {
			r.sink.SegmentStart(int64(r.session.LimitMs()) * int64(r.session.RestartCounter()))
		}

		err := r.runSegment(ctx, payloads)
		switch {
		case errors.Is(err, errStopRequested):
			r.logger.Info("Stop command received, ending session")
			if r.sink != nil {
				r.sink.Stopping()
			}
			return nil
		case errors.Is(err, errInputClosed):
			r.logger.Info("Audio input closed, ending session")
			return nil
		case errors.Is(err, errLimitReached):
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			return err
		default:
			// A segment never ends cleanly; the engine closing the
			// connection is handled as errLimitReached.
			return nil
		}

		if !r.session.LastResultWasFinal() && r.sink != nil {
			r.sink.SegmentBreak()
		}

		r.session.RollSegment()
		if r.metrics != nil {
			r.metrics.SessionRestarted()
		}
		r.logger.Info("Session segment rolled",
			slog.Int("restart_counter", r.session.RestartCounter()))
	}
}

// pump moves captured audio from the session into the payload channel,
// labeling each chunk with the epoch it was read under. It exits when the
// audio input reaches end of stream.
func (r *Relay) pump(payloads chan<- payload) {
	defer close(payloads)

	for {
		data, ok := r.session.NextPayload()
		if !ok {
			return
		}
		payloads <- payload{data: data, epoch: r.session.RestartCounter()}
	}
}

// runSegment drives one connection attempt: open a stream, replay the
// bridging tail, then ship live audio and consume results until the segment
// ends. A dial failure is fatal for the session.
func (r *Relay) runSegment(ctx context.Context, payloads <-chan payload) error {
	stream, err := r.recognizer.OpenStream(ctx, r.streamCfg)
	if err != nil {
		return fmt.Errorf("failed to open engine stream: %w", err)
	}
	defer stream.Close()

	if tail := r.session.BeginSegment(); len(tail) > 0 {
		if err := stream.Send(tail); err != nil {
			return fmt.Errorf("failed to replay bridging audio: %w", err)
		}
		if r.metrics != nil {
			r.metrics.PayloadSent(len(tail))
		}
	}

	epoch := r.session.RestartCounter()

	g, gctx := errgroup.WithContext(ctx)

	// Closing the stream on group shutdown unblocks both loops.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-gctx.Done():
			_ = stream.Close()
		case <-watcherDone:
		}
	}()

	g.Go(func() error {
		return r.sendLoop(gctx, stream, payloads, epoch)
	})
	g.Go(func() error {
		return r.resultLoop(gctx, stream)
	})

	return g.Wait()
}

// sendLoop ships payloads to the stream. Payloads captured under an earlier
// epoch are dropped; the bridging tail already covers them.
func (r *Relay) sendLoop(ctx context.Context, stream engine.Stream, payloads <-chan payload, epoch int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-payloads:
			if !ok {
				return errInputClosed
			}
			if p.epoch < epoch {
				continue
			}
			if err := stream.Send(p.data); err != nil {
				// A failed write means the connection dropped; roll the
				// segment and reconnect, same as hitting the limit.
				r.logger.Warn("Audio send failed, rolling segment",
					slog.String("error", err.Error()))
				return errLimitReached
			}
			if r.metrics != nil {
				r.metrics.PayloadSent(len(p.data))
			}
		}
	}
}

// resultLoop consumes engine results for one segment, correcting timestamps
// and routing finals to the dispatcher.
func (r *Relay) resultLoop(ctx context.Context, stream engine.Stream) error {
	limit := time.Duration(r.session.LimitMs()) * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-stream.Results():
			if !ok {
				return errLimitReached
			}

			if r.session.SegmentElapsed() > limit {
				return errLimitReached
			}

			endMs := result.EndTimeMs()
			r.session.RecordResult(endMs, result.IsFinal)
			corrected := r.session.CorrectedTime(endMs)

			if r.metrics != nil {
				r.metrics.ResultReceived(result.IsFinal)
			}
			if r.sink != nil {
				r.sink.Result(TranscriptResult{
					Text:        result.Transcript,
					IsFinal:     result.IsFinal,
					TimestampMs: corrected,
				})
			}

			if result.IsFinal {
				r.dispatcher.Submit(result.Transcript, corrected)

				if r.matcher != nil && r.matcher.Match(result.Transcript) {
					r.session.Close()
					return errStopRequested
				}
			}
		}
	}
}
