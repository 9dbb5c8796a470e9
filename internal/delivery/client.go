package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Record is one delivered translation pair. Timestamp is the corrected
// session-global time in milliseconds.
type Record struct {
	Timestamp   int64  `json:"timestamp"`
	Translation string `json:"translation"`
	KoreanText  string `json:"korean_text"`
}

// Config contains delivery backend configuration.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Client posts translation records to the downstream backend. Delivery is
// best-effort: one attempt per record, no retry; the backend applies its own
// retry and rate-limit policy.
type Client struct {
	config     Config
	httpClient *http.Client

	mu            sync.RWMutex
	totalRequests uint64
	successCount  uint64
	failedCount   uint64
}

// Stats represents delivery client statistics.
type Stats struct {
	TotalRequests uint64  `json:"total_requests"`
	Successes     uint64  `json:"successes"`
	Failures      uint64  `json:"failures"`
	SuccessRate   float64 `json:"success_rate"`
}

// NewClient creates a delivery client.
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Deliver posts one record. Any non-2xx status or transport error is
// returned; the caller logs it and moves on.
func (c *Client) Deliver(ctx context.Context, record Record) error {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()

	body, err := json.Marshal(record)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("X-API-Key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("delivery request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordFailure()
		return fmt.Errorf("delivery rejected with status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.successCount++
	c.mu.Unlock()

	return nil
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.failedCount++
	c.mu.Unlock()
}

// GetStats returns current delivery statistics.
func (c *Client) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successCount) / float64(c.totalRequests) * 100
	}

	return Stats{
		TotalRequests: c.totalRequests,
		Successes:     c.successCount,
		Failures:      c.failedCount,
		SuccessRate:   successRate,
	}
}
