package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoAPIKey is returned by providers constructed without credentials.
var ErrNoAPIKey = errors.New("API key not configured")

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err as non-retryable. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var p *PermanentError
	if errors.As(err, &p) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is non-retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var p *PermanentError
	if errors.As(err, &p) {
		return true
	}
	var s *StatusError
	if errors.As(err, &s) {
		return s.Permanent()
	}
	return false
}

// StatusError is a non-2xx response from an HTTP provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 512))
}

// Permanent reports whether the status means the request itself is wrong.
// 408, 429 and 5xx are worth retrying; other 4xx are not.
func (e *StatusError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
