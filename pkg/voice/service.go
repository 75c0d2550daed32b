package voice

import (
	"context"
	"sync"
	"time"

	"github.com/cloudgroundcontrol/chat-voice/pkg/credential"
	"github.com/cloudgroundcontrol/chat-voice/pkg/recorder"
	"github.com/cloudgroundcontrol/chat-voice/pkg/transcribe"
	"github.com/cloudgroundcontrol/chat-voice/pkg/upload"
	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"
)

type Service interface {
	Start(ctx context.Context) error
	// Stop ends the recording and transcribes it. Extra credential sources
	// take priority over the configured one.
	Stop(ctx context.Context, creds ...credential.Source) (SessionData, error)
	Toggle(ctx context.Context, creds ...credential.Source) (SessionData, error)

	State() recorder.State
	Supported() bool
	Busy() bool
	LastError() error

	SetUploader(uploader upload.Uploader)
	// Wait blocks until background archive uploads are done.
	Wait()
}

type Hooks struct {
	OnTranscript func(text string)
	OnError      func(n Notification)
}

type service struct {
	rec   recorder.Recorder
	tr    transcribe.Transcriber
	creds credential.Source
	hooks Hooks

	lock         sync.Mutex
	uploader     upload.Uploader
	current      *SessionData
	transcribing bool

	archives sync.WaitGroup
}

func NewService(rec recorder.Recorder, tr transcribe.Transcriber, creds credential.Source, hooks Hooks) Service {
	if creds == nil {
		creds = credential.Static("")
	}
	return &service{
		rec:   rec,
		tr:    tr,
		creds: creds,
		hooks: hooks,
	}
}

func (s *service) SetUploader(uploader upload.Uploader) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.uploader = uploader
}

func (s *service) State() recorder.State {
	return s.rec.State()
}

func (s *service) Supported() bool {
	return s.rec.Supported()
}

func (s *service) LastError() error {
	return s.rec.LastError()
}

// Busy is true while a recording or its transcription is in flight. The chat
// send workflow checks it before sending the compose field.
func (s *service) Busy() bool {
	s.lock.Lock()
	transcribing := s.transcribing
	s.lock.Unlock()
	return transcribing || s.rec.State() != recorder.StateIdle
}

func (s *service) Start(ctx context.Context) error {
	// A finished recording still being transcribed blocks the next one
	s.lock.Lock()
	if s.transcribing {
		s.lock.Unlock()
		s.notify(recorder.ErrBusy)
		return recorder.ErrBusy
	}
	s.lock.Unlock()

	if err := s.rec.Start(ctx); err != nil {
		s.notify(err)
		return err
	}

	s.lock.Lock()
	s.current = &SessionData{
		ID:    shortuuid.New(),
		Start: time.Now(),
	}
	id := s.current.ID
	s.lock.Unlock()

	log.Infof("started voice session | session: %s", id)
	return nil
}

func (s *service) Stop(ctx context.Context, creds ...credential.Source) (SessionData, error) {
	s.lock.Lock()
	if s.transcribing {
		s.lock.Unlock()
		return SessionData{}, nil
	}
	if s.rec.State() != recorder.StateRecording {
		s.lock.Unlock()
		// Let the recorder handle the no-op so leftovers are released
		_, err := s.rec.Stop(ctx)
		return SessionData{}, err
	}
	s.transcribing = true
	data := s.current
	s.current = nil
	s.lock.Unlock()

	defer func() {
		s.lock.Lock()
		s.transcribing = false
		s.lock.Unlock()
	}()

	if data == nil {
		data = &SessionData{ID: shortuuid.New(), Start: time.Now()}
	}

	payload, err := s.rec.Stop(ctx)
	if err != nil {
		s.notify(err)
		return *data, err
	}
	if payload == nil {
		return SessionData{}, nil
	}
	data.End = time.Now()
	data.Bytes = payload.Size()

	if err = s.process(ctx, data, payload, creds); err != nil {
		s.notify(err)
		return *data, err
	}
	return *data, nil
}

func (s *service) Toggle(ctx context.Context, creds ...credential.Source) (SessionData, error) {
	if s.rec.State() == recorder.StateRecording {
		return s.Stop(ctx, creds...)
	}
	return SessionData{}, s.Start(ctx)
}

func (s *service) Wait() {
	s.archives.Wait()
}

func (s *service) notify(err error) {
	n := NewNotification(err)
	log.Warnf("voice session error | kind: %s, error: %v", n.Kind, err)
	if s.hooks.OnError != nil {
		s.hooks.OnError(n)
	}
}
