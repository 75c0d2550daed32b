package recorder

// Recordings are always tagged with the same codec, regardless of what the
// capture device produced.
const (
	MimeType       = "audio/x-m4a"
	MediaExtension = "m4a"
)

// Payload is the audio of one completed recording session.
type Payload struct {
	Data     []byte
	MimeType string
}

func newPayload(data []byte) *Payload {
	return &Payload{Data: data, MimeType: MimeType}
}

func (p *Payload) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}
