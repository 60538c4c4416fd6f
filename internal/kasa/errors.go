package kasa

import "errors"

// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the device cannot be dialled or
	// the connection breaks mid-exchange.
	ErrConnectionFailed = errors.New("kasa: connection failed")

	// ErrEmptyResponse is returned when the device closes the connection or
	// answers with a zero-length frame. Strips do this intermittently under
	// load.
	ErrEmptyResponse = errors.New("kasa: empty response from device")

	// ErrMalformedResponse is returned for a truncated frame, a frame that
	// does not decode to the expected JSON, or an oversized length prefix.
	ErrMalformedResponse = errors.New("kasa: malformed response from device")

	// ErrDeviceRejected is returned when the device answers with a non-zero
	// err_code.
	ErrDeviceRejected = errors.New("kasa: device rejected command")
)
