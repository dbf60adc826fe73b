package frigate

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the client wraps exactly one of these so
// callers can branch with errors.Is without inspecting messages.
var (
	ErrInvalidURL         = errors.New("invalid url")
	ErrNetwork            = errors.New("network error")
	ErrDecoding           = errors.New("decoding error")
	ErrInvalidResponse    = errors.New("invalid response")
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// APIError describes a failed call against the Frigate API.
type APIError struct {
	Kind       error
	Path       string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("api %s returned status %d", e.Path, e.StatusCode)
	case e.Err != nil && e.Path != "":
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s %s", e.Kind, e.Path)
	}
}

// Unwrap exposes both the kind and the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, path string, err error) *APIError {
	return &APIError{Kind: kind, Path: path, Err: err}
}
