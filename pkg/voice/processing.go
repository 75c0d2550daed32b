package voice

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cloudgroundcontrol/chat-voice/pkg/credential"
	"github.com/cloudgroundcontrol/chat-voice/pkg/recorder"
	"github.com/cloudgroundcontrol/chat-voice/pkg/transcribe"
	"github.com/cloudgroundcontrol/chat-voice/pkg/upload"
	"github.com/labstack/gommon/log"
)

func (s *service) process(ctx context.Context, data *SessionData, payload *recorder.Payload, creds []credential.Source) error {
	// Archiving is done in the background and never fails the session
	s.lock.Lock()
	uploader := s.uploader
	s.lock.Unlock()
	if uploader != nil {
		key := fmt.Sprintf("%s.%s", data.ID, recorder.MediaExtension)
		output := upload.ObjectKey(uploader.GetDirectory(), key)
		data.Archive = output
		s.archives.Add(1)
		go func(id string) {
			defer s.archives.Done()
			err := s.archive(uploader, key, payload)
			if err != nil {
				log.Errorf("cannot archive recording | error: %v, output: %s, session: %s", err, output, id)
				return
			}
			log.Infof("archived recording | output: %s, session: %s", output, id)
		}(data.ID)
	}

	sources := make([]credential.Source, 0, len(creds)+1)
	sources = append(sources, creds...)
	sources = append(sources, s.creds)
	token := credential.Chain(sources...).Token()
	text, err := s.tr.Transcribe(ctx, payload, transcribe.Credential(token))
	if err != nil {
		return err
	}
	data.Text = text
	log.Infof("transcribed recording | session: %s, bytes: %d, chars: %d", data.ID, data.Bytes, len(text))

	if s.hooks.OnTranscript != nil {
		s.hooks.OnTranscript(text)
	}
	return nil
}

func (s *service) archive(uploader upload.Uploader, key string, payload *recorder.Payload) error {
	return uploader.Upload(context.Background(), key, bytes.NewReader(payload.Data))
}
