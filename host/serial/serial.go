// Package serial provides host-side serial channels for the HC-05 driver.
//
// A Channel adapts an OS serial device to core.SerialDriver: a pump
// goroutine copies incoming bytes into a ring buffer so reads can honour the
// driver's timeouts. Two backends exist:
//   - native, on github.com/tarm/serial, for a module wired to a USB-UART
//     bridge with KEY and RESET driven some other way
//   - modem, on go.bug.st/serial, which also drives KEY and RESET from the
//     adapter's DTR and RTS lines
package serial

import (
	"io"

	"hc05link/core"
)

// Modem control lines usable as KEY and RESET
const (
	PinDTR core.GPIOPin = 0
	PinRTS core.GPIOPin = 1
)

// Port is an open serial device
type Port interface {
	io.ReadWriteCloser

	// Flush discards unread input
	Flush() error
}

// Backend opens or reconfigures a device for a baud rate and releases it
// when the channel stops
type Backend interface {
	Configure(baud uint32) (Port, error)
	Release(p Port) error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Read timeout of the receive pump in milliseconds. It bounds how long
	// Stop waits for the pump to exit.
	ReadTimeout int

	// Size of the receive ring buffer in bytes
	RxBufferSize int

	// InvertLines drives DTR/RTS active low (modem backend only). Many
	// adapters put an inverter between the control lines and the header.
	InvertLines bool
}

// DefaultConfig returns a configuration for the device with default timing
func DefaultConfig(device string) *Config {
	return &Config{
		Device:       device,
		ReadTimeout:  20,
		RxBufferSize: 4096,
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 20
	}
	if out.RxBufferSize <= 0 {
		out.RxBufferSize = 4096
	}
	return out
}
