package recorder

import (
	"bytes"
	"errors"
	"os"
	"sync"
)

// Sink holds the ordered chunks of one recording session.
type Sink interface {
	Name() string
	Write([]byte) (int, error)
	Bytes() ([]byte, error)
	Close() error
}

var ErrSinkClosed = errors.New("sink closed")

type bufferSink struct {
	name   string
	lock   sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func NewBufferSink(name string) Sink {
	return &bufferSink{name: name}
}

func (s *bufferSink) Name() string {
	return s.name
}

func (s *bufferSink) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.buf.Write(p)
}

// Bytes returns a copy of everything written so far.
func (s *bufferSink) Bytes() ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrSinkClosed
	}
	out := make([]byte, s.buf.Len())
	copy(out, s.buf.Bytes())
	return out, nil
}

func (s *bufferSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	s.buf.Reset()
	return nil
}

// fileSink spools chunks to disk. The file is removed on Close.
type fileSink struct {
	lock   sync.Mutex
	file   *os.File
	closed bool
}

func NewFileSink(filename string) (Sink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &fileSink{file: f}, nil
}

func (s *fileSink) Name() string {
	return s.file.Name()
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	return s.file.Write(p)
}

func (s *fileSink) Bytes() ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil, ErrSinkClosed
	}
	if err := s.file.Sync(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.file.Name())
}

func (s *fileSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return err
	}
	return os.Remove(s.file.Name())
}
