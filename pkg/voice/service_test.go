package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cloudgroundcontrol/chat-voice/pkg/capture"
	"github.com/cloudgroundcontrol/chat-voice/pkg/credential"
	"github.com/cloudgroundcontrol/chat-voice/pkg/recorder"
	"github.com/cloudgroundcontrol/chat-voice/pkg/transcribe"
	"github.com/stretchr/testify/require"
)

type mockRecorder struct {
	lock     sync.Mutex
	state    recorder.State
	startErr error
	stopErr  error
	payload  *recorder.Payload
	stops    int
}

func newMockRecorder(data string) *mockRecorder {
	return &mockRecorder{
		state:   recorder.StateIdle,
		payload: &recorder.Payload{Data: []byte(data), MimeType: recorder.MimeType},
	}
}

func (r *mockRecorder) Start(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.state != recorder.StateIdle {
		return recorder.ErrBusy
	}
	if r.startErr != nil {
		return r.startErr
	}
	r.state = recorder.StateRecording
	return nil
}

func (r *mockRecorder) Stop(ctx context.Context) (*recorder.Payload, error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.stops++
	if r.state != recorder.StateRecording {
		return nil, nil
	}
	r.state = recorder.StateIdle
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	return r.payload, nil
}

func (r *mockRecorder) State() recorder.State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.state
}

func (r *mockRecorder) Supported() bool {
	return true
}

func (r *mockRecorder) LastError() error {
	return nil
}

type mockTranscriber struct {
	lock       sync.Mutex
	text       string
	err        error
	calls      int
	credential transcribe.Credential
	payload    *recorder.Payload
	hold       chan struct{}
	entered    chan struct{}
}

func (m *mockTranscriber) Transcribe(ctx context.Context, payload *recorder.Payload, cred transcribe.Credential) (string, error) {
	if m.entered != nil {
		close(m.entered)
	}
	if m.hold != nil {
		<-m.hold
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	m.calls++
	m.credential = cred
	m.payload = payload
	return m.text, m.err
}

type mockUploader struct {
	lock      sync.Mutex
	directory string
	key       string
	body      []byte
	err       error
}

func (u *mockUploader) Upload(ctx context.Context, key string, body io.Reader) error {
	data, _ := io.ReadAll(body)
	u.lock.Lock()
	defer u.lock.Unlock()
	u.key = key
	u.body = data
	return u.err
}

func (u *mockUploader) GetDirectory() string {
	return u.directory
}

type collector struct {
	texts  []string
	errors []Notification
}

func (c *collector) hooks() Hooks {
	return Hooks{
		OnTranscript: func(text string) { c.texts = append(c.texts, text) },
		OnError:      func(n Notification) { c.errors = append(c.errors, n) },
	}
}

func TestStartStopTranscribes(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{text: "hello"}
	c := &collector{}
	s := NewService(rec, tr, credential.Static("secret"), c.hooks())

	require.NoError(t, s.Start(context.Background()))
	require.True(t, s.Busy())

	data, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hello", data.Text)
	require.Equal(t, 5, data.Bytes)
	require.NotEmpty(t, data.ID)
	require.False(t, data.End.Before(data.Start))
	require.Empty(t, data.Archive)

	require.Equal(t, []string{"hello"}, c.texts)
	require.Empty(t, c.errors)
	require.Equal(t, transcribe.Credential("secret"), tr.credential)
	require.Equal(t, "audio", string(tr.payload.Data))
	require.False(t, s.Busy())
}

func TestStopCredentialOverride(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{}
	s := NewService(rec, tr, credential.Static("default"), Hooks{})

	require.NoError(t, s.Start(context.Background()))
	_, err := s.Stop(context.Background(), credential.Static("request"))
	require.NoError(t, err)
	require.Equal(t, transcribe.Credential("request"), tr.credential)

	// An empty override falls back to the configured source
	require.NoError(t, s.Start(context.Background()))
	_, err = s.Stop(context.Background(), credential.Static(""))
	require.NoError(t, err)
	require.Equal(t, transcribe.Credential("default"), tr.credential)
}

func TestStopWithoutCredentialIsAnonymous(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{text: "hi"}
	s := NewService(rec, tr, nil, Hooks{})

	require.NoError(t, s.Start(context.Background()))
	data, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hi", data.Text)
	require.Equal(t, transcribe.Credential(""), tr.credential)
}

func TestStartFailureNotifies(t *testing.T) {
	rec := newMockRecorder("audio")
	rec.startErr = errors.Join(recorder.ErrAcquisitionFailed, capture.ErrPermissionDenied)
	c := &collector{}
	s := NewService(rec, &mockTranscriber{}, nil, c.hooks())

	err := s.Start(context.Background())
	require.ErrorIs(t, err, recorder.ErrAcquisitionFailed)
	require.Len(t, c.errors, 1)
	require.Equal(t, KindAcquisitionFailed, c.errors[0].Kind)
	require.Equal(t, recorder.ErrAcquisitionFailed.Error(), c.errors[0].Message)
}

func TestStopWhileIdleIsNoop(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{}
	c := &collector{}
	s := NewService(rec, tr, nil, c.hooks())

	data, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, SessionData{}, data)
	require.Equal(t, 0, tr.calls)
	require.Equal(t, 1, rec.stops)
	require.Empty(t, c.texts)
	require.Empty(t, c.errors)
}

func TestUploadErrorPropagates(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{err: &transcribe.UploadError{StatusCode: 500, Message: "bad audio"}}
	c := &collector{}
	s := NewService(rec, tr, nil, c.hooks())

	require.NoError(t, s.Start(context.Background()))
	data, err := s.Stop(context.Background())

	var uploadErr *transcribe.UploadError
	require.True(t, errors.As(err, &uploadErr))
	require.Equal(t, 5, data.Bytes)
	require.Empty(t, c.texts)
	require.Equal(t, []Notification{{Kind: KindUploadError, Message: "bad audio"}}, c.errors)
	require.Equal(t, recorder.StateIdle, s.State())
	require.False(t, s.Busy())
}

func TestTransportErrorNotifies(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{err: &transcribe.TransportError{Err: errors.New("connection refused")}}
	c := &collector{}
	s := NewService(rec, tr, nil, c.hooks())

	require.NoError(t, s.Start(context.Background()))
	_, err := s.Stop(context.Background())
	require.Error(t, err)
	require.Len(t, c.errors, 1)
	require.Equal(t, KindTransportError, c.errors[0].Kind)
}

func TestFinalizeErrorSkipsTranscription(t *testing.T) {
	rec := newMockRecorder("audio")
	rec.stopErr = recorder.ErrFinalizeFailed
	tr := &mockTranscriber{}
	c := &collector{}
	s := NewService(rec, tr, nil, c.hooks())

	require.NoError(t, s.Start(context.Background()))
	_, err := s.Stop(context.Background())
	require.ErrorIs(t, err, recorder.ErrFinalizeFailed)
	require.Equal(t, 0, tr.calls)
	require.Equal(t, KindFinalizeFailed, c.errors[0].Kind)
}

func TestBusyWhileTranscribing(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{
		text:    "done",
		hold:    make(chan struct{}),
		entered: make(chan struct{}),
	}
	c := &collector{}
	s := NewService(rec, tr, nil, Hooks{OnTranscript: c.hooks().OnTranscript})

	require.NoError(t, s.Start(context.Background()))

	done := make(chan SessionData, 1)
	go func() {
		data, _ := s.Stop(context.Background())
		done <- data
	}()
	<-tr.entered

	require.True(t, s.Busy())
	require.Equal(t, recorder.StateIdle, s.State())
	require.ErrorIs(t, s.Start(context.Background()), recorder.ErrBusy)

	// A second stop while the first is transcribing does nothing
	data, err := s.Stop(context.Background())
	require.NoError(t, err)
	require.Equal(t, SessionData{}, data)

	close(tr.hold)
	select {
	case data = <-done:
	case <-time.After(time.Second):
		t.Fatal("stop never returned")
	}
	require.Equal(t, "done", data.Text)
	require.False(t, s.Busy())
	require.NoError(t, s.Start(context.Background()))
}

func TestArchiveUploadsPayload(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{text: "hello"}
	u := &mockUploader{directory: "voice"}
	s := NewService(rec, tr, nil, Hooks{})
	s.SetUploader(u)

	require.NoError(t, s.Start(context.Background()))
	data, err := s.Stop(context.Background())
	require.NoError(t, err)
	s.Wait()

	require.Equal(t, data.ID+".m4a", u.key)
	require.Equal(t, "voice/"+data.ID+".m4a", data.Archive)
	require.Equal(t, "audio", string(u.body))
}

func TestArchiveFailureDoesNotFailSession(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{text: "hello"}
	s := NewService(rec, tr, nil, Hooks{})
	s.SetUploader(&mockUploader{err: errors.New("access denied")})

	require.NoError(t, s.Start(context.Background()))
	data, err := s.Stop(context.Background())
	s.Wait()
	require.NoError(t, err)
	require.Equal(t, "hello", data.Text)
}

func TestToggle(t *testing.T) {
	rec := newMockRecorder("audio")
	tr := &mockTranscriber{text: "toggled"}
	s := NewService(rec, tr, nil, Hooks{})

	data, err := s.Toggle(context.Background())
	require.NoError(t, err)
	require.Equal(t, SessionData{}, data)
	require.Equal(t, recorder.StateRecording, s.State())

	data, err = s.Toggle(context.Background())
	require.NoError(t, err)
	require.Equal(t, "toggled", data.Text)
	require.Equal(t, recorder.StateIdle, s.State())
}
