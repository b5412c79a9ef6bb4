package core

import (
	"errors"
	"time"
)

// Timeout bounds a serial transfer. Immediate never blocks; Infinite blocks
// until the transfer completes or the channel is stopped.
type Timeout time.Duration

const (
	Immediate Timeout = 0
	Infinite  Timeout = -1
)

// Duration returns the timeout as a time.Duration (negative for Infinite)
func (t Timeout) Duration() time.Duration {
	return time.Duration(t)
}

// TimeoutFromMillis converts a millisecond count to a Timeout
func TimeoutFromMillis(ms uint32) Timeout {
	return Timeout(time.Duration(ms) * time.Millisecond)
}

var (
	// ErrTimeout is returned by ReadByte when no byte arrived in time
	ErrTimeout = errors.New("serial: timeout")

	// ErrSerialStopped is returned by transfers on a stopped channel
	ErrSerialStopped = errors.New("serial: channel stopped")
)

// SerialDriver is the UART channel a radio module is attached to.
//
// Start while already started must stop first and reconfigure. Read and Write
// return the number of bytes moved; a timeout is not an error for them, the
// count is simply short. ReadByte reports a timeout with ErrTimeout.
type SerialDriver interface {
	Start(baud uint32) error
	Stop() error
	Write(data []byte, timeout Timeout) (int, error)
	Read(buf []byte, timeout Timeout) (int, error)
	ReadByte(timeout Timeout) (byte, error)
}

// SerialPinConfigurer is implemented by serial drivers that route their own
// TX/RX (and optional RTS/CTS) lines, e.g. alternate-function muxing on an MCU.
type SerialPinConfigurer interface {
	ConfigurePins(tx, rx, rts, cts GPIOPin) error
}
