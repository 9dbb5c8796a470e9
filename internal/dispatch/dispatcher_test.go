package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/takikomiudon/limbus-realtime-translation/internal/delivery"
)

type fakeTranslator struct {
	mu      sync.Mutex
	active  int32
	maxSeen int32
	delay   time.Duration
	err     error
}

func (f *fakeTranslator) Translate(ctx context.Context, text string) (string, error) {
	current := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	if current > f.maxSeen {
		f.maxSeen = current
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return "translated: " + text, nil
}

type fakeDeliverer struct {
	mu      sync.Mutex
	records []delivery.Record
	err     error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, record delivery.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeDeliverer) get() []delivery.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]delivery.Record, len(f.records))
	copy(out, f.records)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSubmitTranslatesAndDelivers(t *testing.T) {
	translator := &fakeTranslator{}
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(Config{Workers: 2}, translator, deliverer, nil, nil, nil)
	defer d.Close()

	d.Submit("안녕하세요", 244800)

	waitFor(t, 2*time.Second, func() bool { return len(deliverer.get()) == 1 })

	record := deliverer.get()[0]
	if record.Timestamp != 244800 {
		t.Errorf("expected timestamp 244800, got %d", record.Timestamp)
	}
	if record.KoreanText != "안녕하세요" {
		t.Errorf("expected source text preserved, got %q", record.KoreanText)
	}
	if record.Translation != "translated: 안녕하세요" {
		t.Errorf("unexpected translation %q", record.Translation)
	}
}

func TestSubmitNeverBlocks(t *testing.T) {
	translator := &fakeTranslator{delay: time.Second}
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(Config{Workers: 1}, translator, deliverer, nil, nil, nil)
	defer d.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Submit("text", int64(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Submit blocked with a busy worker pool")
	}

	if d.Depth() == 0 {
		t.Error("expected pending jobs with a slow single worker")
	}
}

func TestWorkerConcurrencyBound(t *testing.T) {
	translator := &fakeTranslator{delay: 50 * time.Millisecond}
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(Config{Workers: 2}, translator, deliverer, nil, nil, nil)
	defer d.Close()

	for i := 0; i < 10; i++ {
		d.Submit("text", int64(i))
	}

	waitFor(t, 5*time.Second, func() bool { return len(deliverer.get()) == 10 })

	translator.mu.Lock()
	maxSeen := translator.maxSeen
	translator.mu.Unlock()
	if maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent translations, saw %d", maxSeen)
	}
}

func TestTranslationFailureStillDelivers(t *testing.T) {
	translator := &fakeTranslator{err: errors.New("model unavailable")}
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(Config{Workers: 1}, translator, deliverer, nil, nil, nil)
	defer d.Close()

	d.Submit("원문", 1000)

	waitFor(t, 2*time.Second, func() bool { return len(deliverer.get()) == 1 })

	record := deliverer.get()[0]
	if !strings.HasPrefix(record.Translation, "翻訳エラー: ") {
		t.Errorf("expected error placeholder, got %q", record.Translation)
	}
	if record.KoreanText != "원문" {
		t.Errorf("expected source text preserved, got %q", record.KoreanText)
	}
}

func TestCloseDrainsQueuedJobs(t *testing.T) {
	translator := &fakeTranslator{delay: 10 * time.Millisecond}
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(Config{Workers: 1}, translator, deliverer, nil, nil, nil)

	for i := 0; i < 5; i++ {
		d.Submit("text", int64(i))
	}
	d.Close()
	d.Wait()

	if got := len(deliverer.get()); got != 5 {
		t.Errorf("expected queued jobs to drain, delivered %d of 5", got)
	}
}

func TestSubmitAfterClose(t *testing.T) {
	translator := &fakeTranslator{}
	deliverer := &fakeDeliverer{}
	d := NewDispatcher(Config{Workers: 1}, translator, deliverer, nil, nil, nil)

	d.Close()
	d.Submit("text", 0)
	d.Wait()

	if len(deliverer.get()) != 0 {
		t.Error("expected no deliveries after Close")
	}
	if d.Depth() != 0 {
		t.Error("expected empty queue after Close")
	}
}
