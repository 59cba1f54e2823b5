package httptransport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Extractor represents the way we extract a session key from an HTTP request.
// It must not read the body of the request.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

var ErrNoSession = errors.New("no session key on request")

type sessionExtractor struct {
	headers []string
	cookie  string
}

// NewSessionExtractor looks for the session key in the given headers, in
// order, then in the named cookie.
func NewSessionExtractor(cookie string, headers ...string) Extractor {
	return &sessionExtractor{headers: headers, cookie: cookie}
}

// Extract returns the first non-blank value found.
func (e *sessionExtractor) Extract(r *http.Request) (string, error) {
	for _, key := range e.headers {
		if value := strings.TrimSpace(r.Header.Get(key)); value != "" {
			return value, nil
		}
	}

	if e.cookie != "" {
		if c, err := r.Cookie(e.cookie); err == nil {
			if value := strings.TrimSpace(c.Value); value != "" {
				return value, nil
			}
		}
	}

	return "", fmt.Errorf("%w: set one of headers %v or cookie %q", ErrNoSession, e.headers, e.cookie)
}
