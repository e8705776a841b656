package avr

import "errors"

// Domain errors for the AVR controller package.
var (
	// ErrNotConnected is returned when an operation requires a live
	// session but the controller has no connection to the receiver.
	ErrNotConnected = errors.New("avr: not connected")

	// ErrConnectionFailed is returned when opening a connection to the
	// receiver fails, including after the retry budget is exhausted.
	ErrConnectionFailed = errors.New("avr: connection failed")

	// ErrConnectionClosed is returned when the receiver closes the
	// connection or the socket errors mid-operation.
	ErrConnectionClosed = errors.New("avr: connection closed")

	// ErrTimeout is returned when a read does not complete within its
	// window. Callers treat this as "no data pending", not a failure.
	ErrTimeout = errors.New("avr: operation timed out")

	// ErrInvalidCommand is returned when a user-supplied command fails
	// validation before it reaches the transport.
	ErrInvalidCommand = errors.New("avr: invalid command")

	// ErrUnknownCommand is returned when a symbolic command name has no
	// entry in the command table.
	ErrUnknownCommand = errors.New("avr: unknown command name")

	// ErrSendFailed is returned when writing a command to the receiver
	// fails after any permitted reconnect-and-resend attempt.
	ErrSendFailed = errors.New("avr: command send failed")
)
