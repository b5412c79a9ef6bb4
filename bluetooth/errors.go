package bluetooth

import "errors"

var (
	// ErrInvalidArgument is returned for missing or out-of-bound arguments.
	// Nothing is sent and no mode switch happens.
	ErrInvalidArgument = errors.New("bluetooth: invalid argument")

	// ErrResourceUnavailable covers full/empty queues and short serial
	// transfers. The call may be retried.
	ErrResourceUnavailable = errors.New("bluetooth: resource unavailable")

	// ErrProtocolMismatch is returned when the module reply is not OK.
	ErrProtocolMismatch = errors.New("bluetooth: unexpected module response")

	ErrNotOpen        = errors.New("bluetooth: device not open")
	ErrClosed         = errors.New("bluetooth: device closed")
	ErrUnknownVariant = errors.New("bluetooth: unknown module variant")
)
