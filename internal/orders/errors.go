package orders

import "errors"

var (
	// ErrInvalidTransition means the order's current status does not permit
	// the requested transition. State is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrOrderImmutable means the order can no longer be changed this way,
	// typically because payments exist or it already advanced.
	ErrOrderImmutable = errors.New("order immutable")
)
