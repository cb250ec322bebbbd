package x11

import "errors"

var (
	// ErrFetchTimeout means the selection owner did not answer in time.
	ErrFetchTimeout = errors.New("selection conversion timed out")
	// ErrConversionRefused means the owner replied with property None.
	ErrConversionRefused = errors.New("selection owner refused conversion")
	// ErrUnsupportedType means the owner answered with a non-text property type.
	ErrUnsupportedType = errors.New("unsupported property type")
	// ErrTooLarge means the payload exceeded the configured maximum size.
	ErrTooLarge = errors.New("selection content too large")
	// ErrClaimFailed means another client held the selection right after we claimed it.
	ErrClaimFailed = errors.New("failed to acquire selection ownership")
	// ErrDisplayClosed means the X server connection is gone.
	ErrDisplayClosed = errors.New("x11 display connection closed")
)

// permanent reports whether retrying the same owner can never succeed.
func permanent(err error) bool {
	return errors.Is(err, ErrConversionRefused) ||
		errors.Is(err, ErrUnsupportedType) ||
		errors.Is(err, ErrTooLarge)
}
