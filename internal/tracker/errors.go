package tracker

import (
	"errors"
	"fmt"
)

// Query errors. ValidationError is a caller mistake and is never retried;
// ErrPending is distinct from ErrNoData/ErrNotFound so callers can poll a
// pool that is recognized but not yet priced.
var (
	ErrNoData   = errors.New("no data for pool")
	ErrPending  = errors.New("pool is still initializing")
	ErrNotFound = errors.New("no usable historical anchor")
)

// ValidationError marks a malformed query parameter.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func invalidInterval(token string, err error) error {
	return &ValidationError{Msg: fmt.Sprintf("invalid interval %q: %v", token, err)}
}

func invalidRange(from, to int64) error {
	return &ValidationError{Msg: fmt.Sprintf("invalid range: from %d is after to %d", from, to)}
}
