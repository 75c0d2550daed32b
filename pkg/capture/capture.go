package capture

import (
	"context"
	"errors"
)

// Device is the microphone facility the recorder acquires streams from.
type Device interface {
	// Supported reports whether the environment can capture audio at all.
	Supported() bool
	// Open requests exclusive access to an audio input stream.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired audio input. Close stops the underlying tracks.
type Stream interface {
	NewCapture() (Capture, error)
	Close() error
}

// Capture is a recorder bound to a stream. Chunks are delivered in capture
// order; the channel is closed once the last chunk has been flushed after Stop.
type Capture interface {
	Start() error
	Chunks() <-chan []byte
	Stop() error
}

var (
	ErrUnsupported       = errors.New("audio capture is not supported in this environment")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrNoDevice          = errors.New("no audio input device")
	ErrCaptureNotStarted = errors.New("capture not started")
)
