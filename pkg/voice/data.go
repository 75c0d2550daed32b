package voice

import "time"

type SessionData struct {
	ID      string    `json:"id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Bytes   int       `json:"bytes"`
	Archive string    `json:"archive,omitempty"`
	Text    string    `json:"text"`
}
