package rest

import (
	"net/http"

	"github.com/cloudgroundcontrol/chat-voice/pkg/credential"
	"github.com/cloudgroundcontrol/chat-voice/pkg/recorder"
	"github.com/cloudgroundcontrol/chat-voice/pkg/voice"
	"github.com/labstack/echo/v4"
)

type recordingController struct {
	voice.Service
}

type StopRecordingResponse struct {
	Text    string             `json:"text"`
	Session *voice.SessionData `json:"session,omitempty"`
}

type RecordingStateResponse struct {
	State     recorder.State `json:"state"`
	Supported bool           `json:"supported"`
	Busy      bool           `json:"busy"`
	Error     string         `json:"error,omitempty"`
}

func NewRecordingController(service voice.Service) recordingController {
	return recordingController{service}
}

func (rc *recordingController) StartRecording(c echo.Context) error {
	err := rc.Service.Start(c.Request().Context())
	if err != nil {
		return newHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (rc *recordingController) StopRecording(c echo.Context) error {
	// A token sent by the browser takes priority over the configured one
	creds := credential.FromAuthorization(c.Request().Header.Get(echo.HeaderAuthorization))

	data, err := rc.Service.Stop(c.Request().Context(), creds)
	if err != nil {
		return newHTTPError(err)
	}

	res := StopRecordingResponse{Text: data.Text}
	if data.ID != "" {
		res.Session = &data
	}
	return c.JSON(http.StatusOK, res)
}

func (rc *recordingController) GetState(c echo.Context) error {
	res := RecordingStateResponse{
		State:     rc.Service.State(),
		Supported: rc.Service.Supported(),
		Busy:      rc.Service.Busy(),
	}
	if err := rc.Service.LastError(); err != nil {
		res.Error = voice.NewNotification(err).Message
	}
	return c.JSON(http.StatusOK, res)
}

func newHTTPError(err error) *echo.HTTPError {
	n := voice.NewNotification(err)
	var status int
	switch n.Kind {
	case voice.KindBusy:
		status = http.StatusConflict
	case voice.KindCapabilityUnsupported:
		status = http.StatusNotImplemented
	case voice.KindAcquisitionFailed:
		status = http.StatusUnprocessableEntity
	case voice.KindUploadError, voice.KindTransportError:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	return echo.NewHTTPError(status, n)
}
