package obmemo

import (
	"errors"

	"github.com/vnykmshr/obmemo-go/internal/lazy"
)

var (
	// ErrInvalidConfig is returned when a memoizer is constructed, or its
	// cache replaced, with an invalid configuration.
	ErrInvalidConfig = errors.New("obmemo: invalid configuration")

	// ErrUnsupportedKey is returned when call arguments cannot be encoded
	// into a cache key.
	ErrUnsupportedKey = errors.New("obmemo: unsupported key argument")
)

// PanicError is returned to every caller of a computation that panicked.
// Recovered holds the value passed to panic.
type PanicError = lazy.PanicError
