package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/labstack/gommon/log"
)

// DefaultCommand records the default input with ffmpeg and writes AAC frames
// (ADTS) to stdout, which can be streamed without seeking.
var DefaultCommand = []string{
	"ffmpeg",
	"-f", "alsa", "-i", "default",
	"-c:a", "aac",
	"-f", "adts",
	"-loglevel", "error", "-y",
	"pipe:1",
}

const defaultChunkSize = 4096

// ExecDevice captures audio by running an external command and reading its
// stdout. Every read becomes one chunk.
type ExecDevice struct {
	Command   []string
	ChunkSize int
}

func NewExecDevice(command ...string) *ExecDevice {
	if len(command) == 0 {
		command = DefaultCommand
	}
	return &ExecDevice{Command: command, ChunkSize: defaultChunkSize}
}

func (d *ExecDevice) Supported() bool {
	if len(d.Command) == 0 {
		return false
	}
	_, err := exec.LookPath(d.Command[0])
	return err == nil
}

func (d *ExecDevice) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.Supported() {
		return nil, ErrUnsupported
	}
	size := d.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	return &execStream{command: d.Command, size: size}, nil
}

type execStream struct {
	command []string
	size    int

	lock    sync.Mutex
	capture *execCapture
	closed  bool
}

func (s *execStream) NewCapture() (Capture, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil, ErrNoDevice
	}
	c := &execCapture{
		cmd:    exec.Command(s.command[0], s.command[1:]...),
		size:   s.size,
		chunks: make(chan []byte, 16),
		exited: make(chan struct{}),
	}
	c.cmd.Stderr = os.Stderr
	s.capture = c
	return c, nil
}

// Close kills the capture process if it is still running.
func (s *execStream) Close() error {
	s.lock.Lock()
	c := s.capture
	s.closed = true
	s.lock.Unlock()

	if c == nil {
		return nil
	}
	return c.kill()
}

type execCapture struct {
	cmd    *exec.Cmd
	size   int
	chunks chan []byte
	exited chan struct{}

	lock     sync.Mutex
	started  bool
	stopping bool
}

func (c *execCapture) Start() error {
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err = c.cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		return err
	}

	c.lock.Lock()
	c.started = true
	c.lock.Unlock()

	go c.read(stdout)
	return nil
}

func (c *execCapture) Chunks() <-chan []byte {
	return c.chunks
}

// Stop interrupts the command so it can flush its last frames. The chunk
// channel closes once stdout reaches EOF.
func (c *execCapture) Stop() error {
	c.lock.Lock()
	if !c.started {
		c.lock.Unlock()
		return ErrCaptureNotStarted
	}
	if c.stopping {
		c.lock.Unlock()
		return nil
	}
	c.stopping = true
	c.lock.Unlock()

	err := c.cmd.Process.Signal(os.Interrupt)
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return c.cmd.Process.Kill()
}

func (c *execCapture) read(stdout io.Reader) {
	defer close(c.chunks)

	buf := make([]byte, c.size)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.chunks <- chunk
		}
		if err != nil {
			if err != io.EOF {
				log.Debugf("capture read ended | error: %v", err)
			}
			break
		}
	}

	err := c.cmd.Wait()
	c.lock.Lock()
	stopping := c.stopping
	c.lock.Unlock()
	if err != nil && !stopping {
		log.Warnf("capture command exited | command: %s, error: %v", c.cmd.Path, err)
	}
	close(c.exited)
}

func (c *execCapture) kill() error {
	c.lock.Lock()
	started := c.started
	c.stopping = true
	c.lock.Unlock()

	if !started {
		return nil
	}
	select {
	case <-c.exited:
		return nil
	default:
	}
	if err := c.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
