package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/takikomiudon/limbus-realtime-translation/internal/delivery"
	"github.com/takikomiudon/limbus-realtime-translation/internal/translate"
)

// Deliverer posts one finalized record downstream.
type Deliverer interface {
	Deliver(ctx context.Context, record delivery.Record) error
}

// Sink receives finalize pipeline events for display. All methods are
// called from worker goroutines.
type Sink interface {
	Translation(record delivery.Record)
	DeliveryError(err error)
}

// Metrics receives finalize pipeline counters. Implementations must be
// safe for concurrent use.
type Metrics interface {
	FinalizeSubmitted()
	FinalizeDone()
	TranslationFailed()
	DeliverySucceeded()
	DeliveryFailed()
	DeliveryObserved(d time.Duration)
}

// Config contains finalize pipeline configuration.
type Config struct {
	Workers            int
	TranslationTimeout time.Duration
	DeliveryTimeout    time.Duration
}

type job struct {
	text        string
	timestampMs int64
}

// Dispatcher runs the finalize pipeline: each submitted final transcript is
// translated and delivered by a bounded pool of workers. Submission never
// blocks the caller; pending jobs queue without limit.
type Dispatcher struct {
	config     Config
	translator translate.Translator
	deliverer  Deliverer
	sink       Sink
	metrics    Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	pending []job
	closed  bool

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher and starts its workers.
func NewDispatcher(config Config, translator translate.Translator, deliverer Deliverer, sink Sink, metrics Metrics, logger *slog.Logger) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.TranslationTimeout <= 0 {
		config.TranslationTimeout = 30 * time.Second
	}
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		config:     config,
		translator: translator,
		deliverer:  deliverer,
		sink:       sink,
		metrics:    metrics,
		logger:     logger,
	}
	d.cond = sync.NewCond(&d.mu)

	d.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go d.worker(i)
	}

	return d
}

// Submit enqueues one final transcript for translation and delivery.
// It never blocks and is a no-op after Close.
func (d *Dispatcher) Submit(text string, timestampMs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.pending = append(d.pending, job{text: text, timestampMs: timestampMs})
	if d.metrics != nil {
		d.metrics.FinalizeSubmitted()
	}
	d.cond.Signal()
}

// Depth returns the number of jobs waiting for a worker.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops intake. Workers drain the jobs already queued and then exit;
// Close itself does not wait for them.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Wait blocks until all workers have exited. Call after Close.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.pending) == 0 && d.closed {
			d.mu.Unlock()
			return
		}
		j := d.pending[0]
		d.pending = d.pending[1:]
		d.mu.Unlock()

		d.process(id, j)
	}
}

func (d *Dispatcher) process(workerID int, j job) {
	translation := d.translate(j.text)

	record := delivery.Record{
		Timestamp:   j.timestampMs,
		Translation: translation,
		KoreanText:  j.text,
	}

	if d.sink != nil {
		d.sink.Translation(record)
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.config.DeliveryTimeout)
	defer cancel()

	start := time.Now()
	err := d.deliverer.Deliver(ctx, record)
	if d.metrics != nil {
		d.metrics.DeliveryObserved(time.Since(start))
	}

	if err != nil {
		d.logger.Error("Delivery failed",
			"worker_id", workerID,
			"timestamp_ms", j.timestampMs,
			"error", err)
		if d.metrics != nil {
			d.metrics.DeliveryFailed()
		}
		if d.sink != nil {
			d.sink.DeliveryError(err)
		}
	} else if d.metrics != nil {
		d.metrics.DeliverySucceeded()
	}

	if d.metrics != nil {
		d.metrics.FinalizeDone()
	}
}

// translate returns the translated text, or an error placeholder so the
// record is still displayed and delivered when translation fails.
func (d *Dispatcher) translate(text string) string {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.TranslationTimeout)
	defer cancel()

	translation, err := d.translator.Translate(ctx, text)
	if err != nil {
		d.logger.Error("Translation failed", "error", err)
		if d.metrics != nil {
			d.metrics.TranslationFailed()
		}
		return fmt.Sprintf("翻訳エラー: %v", err)
	}
	return translation
}
