package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/cloudgroundcontrol/chat-voice/pkg/recorder"
	"github.com/labstack/gommon/log"
)

const DefaultEndpoint = "https://chat-sdk-backend.onrender.com/chat/upload-audio"

const (
	audioField      = "audio"
	fallbackMessage = "Failed to transcribe audio"
)

// Credential is a bearer token. The empty credential sends the request anonymously.
type Credential string

type Transcriber interface {
	Transcribe(ctx context.Context, payload *recorder.Payload, credential Credential) (string, error)
}

var ErrEmptyPayload = errors.New("empty audio payload")

// UploadError is returned when the endpoint rejects the upload.
type UploadError struct {
	StatusCode int
	Message    string
}

func (e *UploadError) Error() string {
	return e.Message
}

// TransportError is returned when the request never produced a response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Option func(c *Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client uploads recordings to a speech-to-text endpoint. It holds no
// per-request state and may be used concurrently.
type Client struct {
	endpoint string
	client   *http.Client
	now      func() time.Time
}

func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		client:   http.DefaultClient,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

type successBody struct {
	Response string `json:"response"`
}

type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) Transcribe(ctx context.Context, payload *recorder.Payload, credential Credential) (string, error) {
	if payload == nil {
		return "", ErrEmptyPayload
	}

	body, contentType, err := c.encode(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+string(credential))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", parseUploadError(resp.StatusCode, raw)
	}

	var out successBody
	if err = json.Unmarshal(raw, &out); err != nil {
		log.Warnf("malformed transcription response | status: %d, error: %v", resp.StatusCode, err)
		return "", nil
	}
	log.Debugf("received transcription | bytes: %d, chars: %d", payload.Size(), len(out.Response))
	return out.Response, nil
}

func (c *Client) encode(payload *recorder.Payload) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	mimeType := payload.MimeType
	if mimeType == "" {
		mimeType = recorder.MimeType
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="%s"; filename="%s"`, audioField, Filename(c.now())))
	h.Set("Content-Type", mimeType)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err = part.Write(payload.Data); err != nil {
		return nil, "", err
	}
	if err = w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

// Filename encodes the upload time so concurrent uploads never collide.
func Filename(t time.Time) string {
	return fmt.Sprintf("recording-%d.%s", t.UnixMilli(), recorder.MediaExtension)
}

func parseUploadError(status int, raw []byte) *UploadError {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		return &UploadError{StatusCode: status, Message: fallbackMessage}
	}
	return &UploadError{StatusCode: status, Message: body.Message}
}
