package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrUnknownDevice) {
//	    // reply 400
//	}
var (
	// ErrInvalidInput is returned when a required field (the device id) is missing.
	ErrInvalidInput = errors.New("device: invalid input")

	// ErrUnknownDevice is returned when an id is not present in a closed registry,
	// or when a lookup targets an id that was never registered.
	ErrUnknownDevice = errors.New("device: unknown device")
)
