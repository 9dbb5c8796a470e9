package console

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/takikomiudon/limbus-realtime-translation/internal/delivery"
	"github.com/takikomiudon/limbus-realtime-translation/internal/relay"
)

const (
	red    = "\033[0;31m"
	green  = "\033[0;32m"
	yellow = "\033[0;33m"
	clear  = "\033[K"
)

// Console renders the live transcript and translations to a terminal.
// Interim results overwrite the current line in red; finals commit it in
// green; translations and status lines are yellow. Safe for concurrent use
// by the relay and the finalize workers.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	interimShown bool
}

// New creates a console writing to stdout.
func New() *Console {
	return NewWriter(os.Stdout)
}

// NewWriter creates a console writing to out.
func NewWriter(out io.Writer) *Console {
	return &Console{out: out}
}

// SegmentStart prints the banner for a new engine connection. offsetMs is
// where the connection starts on the session-global time axis.
func (c *Console) SegmentStart(offsetMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s\n%d: NEW REQUEST\n", yellow, offsetMs)
	c.interimShown = false
}

// SegmentBreak terminates a dangling interim line when a connection ends
// without a final result.
func (c *Console) SegmentBreak() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprint(c.out, "\n")
	c.interimShown = false
}

// Result renders one live result. Interim results rewrite the current line;
// final results commit it.
func (c *Console) Result(result relay.TranscriptResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result.IsFinal {
		fmt.Fprintf(c.out, "%s%s%d: %s\n", green, clear, result.TimestampMs, result.Text)
		c.interimShown = false
		return
	}

	fmt.Fprintf(c.out, "%s%s%d: %s\r", red, clear, result.TimestampMs, result.Text)
	c.interimShown = true
}

// Stopping announces a voice stop command.
func (c *Console) Stopping() {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%sExiting...\n", yellow)
}

// Translation renders one finished translation alongside its source line.
// Arrival order follows worker completion, not submission.
func (c *Console) Translation(record delivery.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := ""
	if c.interimShown {
		prefix = "\n"
		c.interimShown = false
	}
	fmt.Fprintf(c.out, "%s%s%d: 韓国語: %s\n%d: 翻訳: %s\n",
		prefix, yellow, record.Timestamp, record.KoreanText, record.Timestamp, record.Translation)
}

// DeliveryError renders a failed delivery attempt.
func (c *Console) DeliveryError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "%s配信エラー: %v\n", red, err)
}
