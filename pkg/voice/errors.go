package voice

import (
	"errors"

	"github.com/cloudgroundcontrol/chat-voice/pkg/recorder"
	"github.com/cloudgroundcontrol/chat-voice/pkg/transcribe"
)

type Kind string

const (
	KindCapabilityUnsupported Kind = "capability_unsupported"
	KindAcquisitionFailed     Kind = "acquisition_failed"
	KindTransportError        Kind = "transport_error"
	KindUploadError           Kind = "upload_error"
	// Malformed responses default to empty text, nothing raises this kind
	KindMalformedResponse Kind = "malformed_response"
	KindBusy                  Kind = "busy"
	KindFinalizeFailed        Kind = "finalize_failed"
	KindUnknown               Kind = "unknown"
)

// Notification is what the chat UI shows the user when something fails.
type Notification struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func Classify(err error) Kind {
	var uploadErr *transcribe.UploadError
	var transportErr *transcribe.TransportError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, recorder.ErrCapabilityUnsupported):
		return KindCapabilityUnsupported
	case errors.Is(err, recorder.ErrAcquisitionFailed):
		return KindAcquisitionFailed
	case errors.Is(err, recorder.ErrBusy):
		return KindBusy
	case errors.Is(err, recorder.ErrFinalizeFailed):
		return KindFinalizeFailed
	case errors.As(err, &uploadErr):
		return KindUploadError
	case errors.As(err, &transportErr):
		return KindTransportError
	default:
		return KindUnknown
	}
}

// NewNotification builds the user-facing message for err. Recorder errors
// carry the device detail after the sentinel, which is only logged.
func NewNotification(err error) Notification {
	kind := Classify(err)
	var message string
	switch kind {
	case KindCapabilityUnsupported:
		message = recorder.ErrCapabilityUnsupported.Error()
	case KindAcquisitionFailed:
		message = recorder.ErrAcquisitionFailed.Error()
	case KindBusy:
		message = recorder.ErrBusy.Error()
	case KindFinalizeFailed:
		message = recorder.ErrFinalizeFailed.Error()
	case KindTransportError:
		message = "Could not reach the transcription service"
	default:
		message = err.Error()
	}
	return Notification{Kind: kind, Message: message}
}
