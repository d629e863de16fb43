package remote

import (
	"errors"
	"fmt"
)

// ErrBlankTranscript rejects translation requests built from an empty or
// whitespace-only transcript. Callers are expected to route around the
// translation step instead of sending one.
var ErrBlankTranscript = errors.New("transcript is blank")

// ServerError is a non-success HTTP response from the analysis backend.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("server responded with status %d: %s", e.StatusCode, e.Message)
}

// AsServerError extracts a ServerError from an error chain.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// TranslationError means the directive-parse response was structurally
// unparsable. Individual invalid entries never produce one; those are
// dropped entry by entry.
type TranslationError struct {
	Err error
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("unparsable directive response: %v", e.Err)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// IsTranslationError reports whether the error chain contains a TranslationError.
func IsTranslationError(err error) bool {
	var te *TranslationError
	return errors.As(err, &te)
}
