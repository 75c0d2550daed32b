package credential

import (
	"os"
	"strings"

	"github.com/labstack/gommon/log"
)

// Source gives read-only access to a bearer token. An empty token means the
// caller is anonymous.
type Source interface {
	Token() string
}

type static string

func Static(token string) Source {
	return static(token)
}

func (s static) Token() string {
	return string(s)
}

type file struct {
	path string
}

// File reads the token from path on every call, so a token refreshed by the
// login flow is picked up without a restart.
func File(path string) Source {
	return &file{path}
}

func (f *file) Token() string {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("cannot read token file | error: %v, path: %s", err, f.path)
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

type chain []Source

// Chain returns the first non-empty token of its sources.
func Chain(sources ...Source) Source {
	return chain(sources)
}

func (c chain) Token() string {
	for _, s := range c {
		if s == nil {
			continue
		}
		if token := s.Token(); token != "" {
			return token
		}
	}
	return ""
}

// FromAuthorization extracts the token of a "Bearer <token>" header value.
func FromAuthorization(header string) Source {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return Static("")
	}
	return Static(strings.TrimSpace(header[len(prefix):]))
}
