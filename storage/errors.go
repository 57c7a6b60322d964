package storage

import "github.com/cockroachdb/errors"

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: immutable object mismatch")
	// ErrUnavailable marks transport-level failures (network error, non-2xx reply).
	ErrUnavailable = errors.New("storage: backend unavailable")
	// ErrTooLarge is returned when an object exceeds a backend's size limit.
	ErrTooLarge = errors.New("storage: object too large")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
