package audio

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// CaptureConfig contains microphone capture parameters.
type CaptureConfig struct {
	SampleRate int // Hz
	Channels   int // mono expected
	FrameBytes int // bytes per frame pushed to the queue
}

// Capture owns the microphone device and pushes fixed-size PCM frames into a
// FrameQueue from the device callback. The callback never blocks on network
// I/O; it only appends to the queue.
type Capture struct {
	config CaptureConfig
	logger *slog.Logger
	queue  *FrameQueue

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device

	// Partial frame carried between device callbacks. The device delivers
	// whatever period size the backend chose; the queue carries exact frames.
	pending []byte
}

// NewCapture initializes the audio backend and the capture device. The
// device is not started until Start is called.
func NewCapture(config CaptureConfig, queue *FrameQueue, logger *slog.Logger) (*Capture, error) {
	if config.FrameBytes <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", config.FrameBytes)
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init audio context: %w", err)
	}

	c := &Capture{
		config:   config,
		logger:   logger,
		queue:    queue,
		malgoCtx: malgoCtx,
		pending:  make([]byte, 0, config.FrameBytes),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(config.Channels)
	deviceConfig.SampleRate = uint32(config.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			c.onData(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		return nil, fmt.Errorf("failed to init capture device: %w", err)
	}
	c.device = device

	return c, nil
}

// onData runs on the device thread. It slices the incoming samples into
// exact frames and pushes them; a trailing partial frame is carried over.
func (c *Capture) onData(input []byte) {
	c.pending = append(c.pending, input...)

	for len(c.pending) >= c.config.FrameBytes {
		frame := make([]byte, c.config.FrameBytes)
		copy(frame, c.pending[:c.config.FrameBytes])
		c.queue.Push(frame)
		c.pending = c.pending[c.config.FrameBytes:]
	}
}

// Start begins capturing from the microphone.
func (c *Capture) Start() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	c.logger.Info("Microphone capture started",
		slog.Int("sample_rate", c.config.SampleRate),
		slog.Int("frame_bytes", c.config.FrameBytes),
	)
	return nil
}

// Stop stops the device, closes the frame queue, and releases the backend.
func (c *Capture) Stop() {
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}

	c.queue.Close()

	if c.malgoCtx != nil {
		_ = c.malgoCtx.Uninit()
		c.malgoCtx = nil
	}

	c.logger.Info("Microphone capture stopped")
}
