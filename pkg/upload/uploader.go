package upload

import (
	"context"
	"io"
)

type Uploader interface {
	// Key is a unique identifier for the object, relative to the directory.
	Upload(ctx context.Context, key string, body io.Reader) error
	GetDirectory() string
}
