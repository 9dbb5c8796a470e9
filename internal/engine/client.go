package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Config contains transcription engine connection configuration.
type Config struct {
	URL            string
	APIKey         string
	ConnectTimeout time.Duration
}

// StreamConfig is the one-time configuration sent when a stream is opened.
type StreamConfig struct {
	SampleRate      int
	Language        string
	MaxAlternatives int
	InterimResults  bool
	Phrases         []Phrase
}

// Phrase is one entry of the phrase-boost vocabulary.
type Phrase struct {
	Value string  `json:"value"`
	Boost float64 `json:"boost"`
}

// Result is a single transcription result. EndTime is engine-relative; the
// relay converts it to the session-global axis before anything else sees it.
type Result struct {
	Transcript string
	IsFinal    bool
	EndTime    time.Duration
}

// EndTimeMs returns the engine-relative end time in milliseconds.
func (r Result) EndTimeMs() int {
	return int(r.EndTime / time.Millisecond)
}

// Recognizer opens transcription streams. The relay depends on this
// interface so tests can substitute a fake engine.
type Recognizer interface {
	OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Stream is one connection attempt against the engine: a chunk sink and a
// result source. The results channel is closed when the connection ends for
// any reason; the relay treats that as a segment boundary.
type Stream interface {
	Send(payload []byte) error
	Results() <-chan Result
	Close() error
}

// Client is a websocket transcription engine client.
type Client struct {
	config Config
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewClient validates the configuration and creates an engine client. No
// connection is made until OpenStream.
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("engine URL cannot be empty")
	}

	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: config.ConnectTimeout,
	}

	return &Client{
		config: config,
		logger: logger,
		dialer: dialer,
	}, nil
}

// configMessage is the first outbound frame on every stream.
type configMessage struct {
	RequestID string            `json:"request_id"`
	Config    recognitionConfig `json:"config"`
}

type recognitionConfig struct {
	Encoding        string   `json:"encoding"`
	SampleRateHertz int      `json:"sample_rate_hertz"`
	LanguageCode    string   `json:"language_code"`
	MaxAlternatives int      `json:"max_alternatives"`
	InterimResults  bool     `json:"interim_results"`
	Phrases         []Phrase `json:"phrases,omitempty"`
}

// streamingResponse mirrors the engine's inbound result frames.
type streamingResponse struct {
	Results []streamingResult `json:"results"`
}

type streamingResult struct {
	Alternatives  []alternative `json:"alternatives"`
	IsFinal       bool          `json:"is_final"`
	ResultEndTime wireDuration  `json:"result_end_time"`
}

type alternative struct {
	Transcript string `json:"transcript"`
}

type wireDuration struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

func (d wireDuration) duration() time.Duration {
	return time.Duration(d.Seconds)*time.Second + time.Duration(d.Nanos)*time.Nanosecond
}

// OpenStream dials the engine, sends the configuration frame, and starts the
// read loop. The returned stream is ready for audio payloads.
func (c *Client) OpenStream(ctx context.Context, cfg StreamConfig) (Stream, error) {
	header := http.Header{}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial engine %s: %w", c.config.URL, err)
	}

	requestID := uuid.NewString()
	msg := configMessage{
		RequestID: requestID,
		Config: recognitionConfig{
			Encoding:        "LINEAR16",
			SampleRateHertz: cfg.SampleRate,
			LanguageCode:    cfg.Language,
			MaxAlternatives: cfg.MaxAlternatives,
			InterimResults:  cfg.InterimResults,
			Phrases:         cfg.Phrases,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to marshal stream config: %w", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send stream config: %w", err)
	}

	s := &wsStream{
		conn:    conn,
		logger:  c.logger,
		results: make(chan Result, 32),
		done:    make(chan struct{}),
	}
	go s.readLoop()

	c.logger.Debug("Engine stream opened",
		slog.String("request_id", requestID),
		slog.String("language", cfg.Language),
		slog.Int("sample_rate", cfg.SampleRate),
		slog.Int("phrases", len(cfg.Phrases)),
	)

	return s, nil
}

// wsStream is one live websocket connection to the engine.
type wsStream struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	results chan Result
	done    chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Send writes one audio payload as a binary frame.
func (s *wsStream) Send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Results returns the inbound result channel. It is closed when the
// connection ends.
func (s *wsStream) Results() <-chan Result {
	return s.results
}

// Close tears the connection down. Safe to call more than once.
func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// readLoop consumes inbound frames until the connection ends and closes the
// results channel. Only the top alternative of the top result is surfaced.
func (s *wsStream) readLoop() {
	defer close(s.results)

	for {
		msgType, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("Engine stream read ended", slog.String("error", err.Error()))
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		var resp streamingResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			s.logger.Warn("Failed to parse engine response", slog.String("error", err.Error()))
			continue
		}

		if len(resp.Results) == 0 {
			continue
		}

		result := resp.Results[0]
		if len(result.Alternatives) == 0 {
			continue
		}

		select {
		case s.results <- Result{
			Transcript: result.Alternatives[0].Transcript,
			IsFinal:    result.IsFinal,
			EndTime:    result.ResultEndTime.duration(),
		}:
		case <-s.done:
			// Receiver is gone; stop instead of blocking on a full
			// channel forever.
			return
		}
	}
}
