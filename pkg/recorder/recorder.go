package recorder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cloudgroundcontrol/chat-voice/pkg/capture"
	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"
)

type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*Payload, error)
	State() State
	Supported() bool
	LastError() error
}

type RecorderHooks struct {
	OnStateChange func(s State)
}

var (
	ErrCapabilityUnsupported = errors.New("audio recording is not supported in this environment")
	ErrAcquisitionFailed     = errors.New("could not start recording, please check microphone permissions")
	ErrFinalizeFailed        = errors.New("could not finalize recording")
	ErrBusy                  = errors.New("a recording is already in progress")
)

type Option func(r *recorder)

func WithHooks(hooks *RecorderHooks) Option {
	return func(r *recorder) {
		r.hooks = hooks
	}
}

// WithSpoolDir spools chunks to files in dir instead of keeping them in memory.
func WithSpoolDir(dir string) Option {
	return func(r *recorder) {
		r.newSink = func() (Sink, error) {
			return NewFileSink(filepath.Join(dir, fmt.Sprintf("%s.%s", shortuuid.New(), MediaExtension)))
		}
	}
}

func WithSinkFactory(f func() (Sink, error)) Option {
	return func(r *recorder) {
		r.newSink = f
	}
}

type recorder struct {
	device    capture.Device
	supported bool
	hooks     *RecorderHooks
	newSink   func() (Sink, error)

	lock     sync.Mutex
	state    State
	err      error
	starting bool
	session  *session
}

// New probes the device once; the result is never re-evaluated.
func New(device capture.Device, opts ...Option) Recorder {
	r := &recorder{
		device:    device,
		supported: device != nil && device.Supported(),
		state:     StateIdle,
		newSink: func() (Sink, error) {
			return NewBufferSink(shortuuid.New()), nil
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.supported {
		r.err = ErrCapabilityUnsupported
	}
	return r
}

func (r *recorder) Supported() bool {
	return r.supported
}

func (r *recorder) State() State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state
}

func (r *recorder) LastError() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.err
}

func (r *recorder) Start(ctx context.Context) error {
	r.lock.Lock()
	if r.state != StateIdle || r.starting {
		r.lock.Unlock()
		return ErrBusy
	}
	r.err = nil
	if !r.supported {
		r.err = ErrCapabilityUnsupported
		r.lock.Unlock()
		return ErrCapabilityUnsupported
	}
	r.starting = true
	r.lock.Unlock()

	s, err := r.acquire(ctx)

	r.lock.Lock()
	r.starting = false
	if err != nil {
		r.err = err
		r.lock.Unlock()
		log.Errorf("cannot start recording | error: %v", err)
		return err
	}
	r.session = s
	r.state = StateRecording
	r.lock.Unlock()

	go s.consume()
	log.Debugf("started recording | sink: %s", s.sink.Name())
	r.notify(StateRecording)
	return nil
}

func (r *recorder) acquire(ctx context.Context) (*session, error) {
	stream, err := r.device.Open(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrUnsupported) {
			return nil, ErrCapabilityUnsupported
		}
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionFailed, err)
	}
	rel := &release{stream: stream}

	c, err := stream.NewCapture()
	if err != nil {
		rel.do()
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionFailed, err)
	}

	sink, err := r.newSink()
	if err != nil {
		rel.do()
		return nil, fmt.Errorf("%w: cannot create sink: %w", ErrAcquisitionFailed, err)
	}

	if err = c.Start(); err != nil {
		sink.Close()
		rel.do()
		return nil, fmt.Errorf("%w: %w", ErrAcquisitionFailed, err)
	}

	return &session{
		stream:  rel,
		capture: c,
		sink:    sink,
		drained: make(chan struct{}),
	}, nil
}

// Stop finalizes the current session. Outside of StateRecording it returns
// no payload and changes nothing.
func (r *recorder) Stop(ctx context.Context) (*Payload, error) {
	r.lock.Lock()
	if r.state != StateRecording {
		var stale *session
		if r.state == StateIdle {
			stale, r.session = r.session, nil
		}
		r.lock.Unlock()
		if stale != nil {
			stale.stream.do()
		}
		return nil, nil
	}
	s := r.session
	r.session = nil
	r.state = StateProcessing
	r.lock.Unlock()
	r.notify(StateProcessing)

	payload, err := s.finalize(ctx)

	// Tracks are released whether or not finalization succeeded
	s.stream.do()

	r.lock.Lock()
	r.state = StateIdle
	r.lock.Unlock()
	r.notify(StateIdle)

	if err != nil {
		log.Errorf("cannot finalize recording | error: %v, sink: %s", err, s.sink.Name())
		return nil, err
	}
	log.Debugf("stopped recording | sink: %s, bytes: %d", s.sink.Name(), payload.Size())
	return payload, nil
}

func (r *recorder) notify(s State) {
	if r.hooks != nil && r.hooks.OnStateChange != nil {
		r.hooks.OnStateChange(s)
	}
}

type session struct {
	stream  *release
	capture capture.Capture
	sink    Sink

	// Closed once every chunk has been appended to the sink
	drained chan struct{}
	err     error
}

func (s *session) consume() {
	defer close(s.drained)
	for chunk := range s.capture.Chunks() {
		if len(chunk) == 0 || s.err != nil {
			continue
		}
		if _, err := s.sink.Write(chunk); err != nil {
			s.err = err
		}
	}
}

func (s *session) finalize(ctx context.Context) (*Payload, error) {
	defer s.sink.Close()

	if err := s.capture.Stop(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalizeFailed, err)
	}

	select {
	case <-s.drained:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrFinalizeFailed, ctx.Err())
	}
	if s.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalizeFailed, s.err)
	}

	data, err := s.sink.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFinalizeFailed, err)
	}
	return newPayload(data), nil
}

// release closes a stream at most once.
type release struct {
	stream capture.Stream
	once   sync.Once
}

func (r *release) do() {
	r.once.Do(func() {
		if err := r.stream.Close(); err != nil {
			log.Warnf("cannot release audio stream | error: %v", err)
		}
	})
}
