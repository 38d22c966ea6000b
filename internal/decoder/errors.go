package decoder

import "errors"

// ErrNoStrategy means no decode strategy accepted the file.
var ErrNoStrategy = errors.New("no decode strategy for file")

// DecodeError wraps a single strategy's failure with context about which
// strategy failed on which path. The adapter aggregates these with
// errors.Join so a total failure carries every attempt.
type DecodeError struct {
	Strategy string // strategy that failed (e.g. "raw", "standard", "heif")
	Path     string // path of the file that caused the error
	Err      error  // the underlying error
}

func (e *DecodeError) Error() string {
	return "decode (" + e.Strategy + ") " + e.Path + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
