package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Load when no snapshot file exists. Callers
	// treat it as a first run.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorrupt matches every *CorruptError with errors.Is.
	ErrCorrupt = errors.New("corrupt snapshot")
)

// CorruptError reports a snapshot file that exists but cannot be trusted:
// malformed content, invalid digests or paths, or a root that does not match
// the files it claims to summarize.
type CorruptError struct {
	Name   string
	Reason string
	Err    error
}

func (e *CorruptError) Error() string {
	msg := fmt.Sprintf("corrupt snapshot %s: %s", e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptError) Unwrap() error { return e.Err }

func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

func corrupt(name, reason string, err error) error {
	return &CorruptError{Name: name, Reason: reason, Err: err}
}
