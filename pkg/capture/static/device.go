package static

import (
	"context"
	"sync"
	"time"

	"github.com/cloudgroundcontrol/chat-voice/pkg/capture"
)

const stringSample = "hello world"

// Device emits the same sample on every tick. It stands in for a microphone
// when no capture hardware is available.
type Device struct {
	Sample   []byte
	Interval time.Duration
}

func NewDevice() *Device {
	return &Device{
		Sample:   []byte(stringSample),
		Interval: 100 * time.Millisecond,
	}
}

func (d *Device) Supported() bool {
	return true
}

func (d *Device) Open(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &stream{device: d}, nil
}

type stream struct {
	device *Device
}

func (s *stream) NewCapture() (capture.Capture, error) {
	return &staticCapture{
		sample:   s.device.Sample,
		interval: s.device.Interval,
		chunks:   make(chan []byte),
		done:     make(chan struct{}),
	}, nil
}

func (s *stream) Close() error {
	return nil
}

type staticCapture struct {
	sample   []byte
	interval time.Duration
	chunks   chan []byte
	done     chan struct{}
	once     sync.Once
	started  bool
}

func (c *staticCapture) Start() error {
	c.started = true
	go c.run()
	return nil
}

func (c *staticCapture) Chunks() <-chan []byte {
	return c.chunks
}

func (c *staticCapture) Stop() error {
	if !c.started {
		return capture.ErrCaptureNotStarted
	}
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *staticCapture) run() {
	defer close(c.chunks)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			// Flush one last sample, like a recorder emitting its final buffer
			c.chunks <- c.next()
			return
		case <-ticker.C:
			select {
			case c.chunks <- c.next():
			case <-c.done:
				c.chunks <- c.next()
				return
			}
		}
	}
}

func (c *staticCapture) next() []byte {
	chunk := make([]byte, len(c.sample))
	copy(chunk, c.sample)
	return chunk
}
