package clip

import (
	"errors"
	"fmt"
)

// Primary path errors. They are recoverable: the copier logs them and moves
// on to the fallback writer.
var (
	ErrUnavailable = errors.New("clipboard unavailable")
	ErrWriteFailed = errors.New("clipboard write failed")
)

var errNoHelper = errors.New("no clipboard helper configured")

// SpawnError means the helper executable could not be launched.
type SpawnError struct {
	Helper string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Helper, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// WriteError means the payload could not be fully written to the helper's stdin.
type WriteError struct {
	Helper string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write to %s: %v", e.Helper, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// HelperExitError means the helper ran but did not exit cleanly. Stderr
// holds its diagnostic output, trimmed.
type HelperExitError struct {
	Helper string
	Code   int
	Stderr string
	Err    error
}

func (e *HelperExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %s", e.Helper, e.Stderr)
	}
	if e.Code > 0 {
		return fmt.Sprintf("%s failed: exit status %d", e.Helper, e.Code)
	}
	return fmt.Sprintf("%s failed: %v", e.Helper, e.Err)
}

func (e *HelperExitError) Unwrap() error { return e.Err }
