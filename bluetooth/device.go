// Package bluetooth defines the capability surface shared by all serial
// Bluetooth module variants and the configuration they are opened with.
package bluetooth

// Device is the capability table of a module variant. Implementations are
// bound at construction time and are not safe for concurrent configuration
// calls; SendBuffer/ReadBuffer may run alongside them.
type Device interface {
	// Open configures pins and serial, starts the I/O workers and leaves the
	// module in communication mode.
	Open(cfg *Config) error
	// Close stops the workers and the serial channel. It is idempotent.
	Close() error

	// SendBuffer queues data for transmission; all of it or nothing.
	SendBuffer(data []byte) error
	// SendCommandByte queues a single byte for transmission.
	SendCommandByte(b byte) error
	// CanReceive reports whether received data is waiting.
	CanReceive() bool
	// ReadBuffer moves up to len(buf) received bytes into buf.
	ReadBuffer(buf []byte) (int, error)

	SetPinCode(pin string) error
	SetName(name string) error
	ResetModuleSettings() error
}
