package bluetooth

import (
	"fmt"
	"log/slog"

	"hc05link/core"
	"hc05link/protocol"
)

// BaudRate is a UART bit rate supported by the module firmware
type BaudRate uint32

const (
	Baud1200   BaudRate = 1200
	Baud2400   BaudRate = 2400
	Baud4800   BaudRate = 4800
	Baud9600   BaudRate = 9600
	Baud19200  BaudRate = 19200
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200

	DefaultBaudRate = Baud38400
)

// Valid reports whether the module firmware accepts this rate
func (b BaudRate) Valid() bool {
	switch b {
	case Baud1200, Baud2400, Baud4800, Baud9600, Baud19200, Baud38400, Baud57600, Baud115200:
		return true
	}
	return false
}

// Default timing and sizing
const (
	DefaultSettleTimeMs        = 200
	DefaultCommSleepTimeMs     = 100
	DefaultQueueSize           = 64
	DefaultATResponseTimeoutMs = 1000
)

// Pins assigns the MCU lines wired to the module. RTS and CTS are only used
// when FlowControl is set.
type Pins struct {
	TX    core.GPIOPin
	RX    core.GPIOPin
	Reset core.GPIOPin
	Key   core.GPIOPin

	FlowControl bool
	RTS         core.GPIOPin
	CTS         core.GPIOPin
}

// Config is the module configuration handed to Open. The driver keeps its own
// copy; the caller's value is never modified.
type Config struct {
	Name       string
	PinCode    string
	BaudRate   BaudRate // communication mode rate
	ATBaudRate BaudRate // AT mode rate, fixed by the module (38400 on HC-05)
	Pins       Pins

	Serial  core.SerialDriver
	GPIO    core.GPIODriver
	Sleeper core.Sleeper
	Logger  *slog.Logger

	MaxNameLength  int
	PinLength      int
	MaxCommandSize int

	SettleTimeMs        uint32 // wait around each RESET edge
	CommSleepTimeMs     uint32 // worker poll interval
	ATResponseTimeoutMs uint32

	SendQueueSize    int
	ReceiveQueueSize int

	// LeadingTerminator sends CR LF before each AT frame to flush a partial
	// line on the module side.
	LeadingTerminator bool
	// SkipResponseCheck disables comparing the module reply against OK.
	SkipResponseCheck bool
	// ApplyOnOpen writes Name and PinCode to the module at the end of Open.
	ApplyOnOpen bool
}

// Validate rejects configurations that cannot drive a module
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidArgument)
	}
	if c.Serial == nil {
		return fmt.Errorf("%w: no serial driver", ErrInvalidArgument)
	}
	if c.GPIO == nil {
		return fmt.Errorf("%w: no GPIO driver", ErrInvalidArgument)
	}
	if !c.Pins.Key.Valid() || !c.Pins.Reset.Valid() {
		return fmt.Errorf("%w: KEY and RESET pins are required", ErrInvalidArgument)
	}
	if c.Pins.FlowControl && (!c.Pins.RTS.Valid() || !c.Pins.CTS.Valid()) {
		return fmt.Errorf("%w: flow control needs RTS and CTS pins", ErrInvalidArgument)
	}
	return nil
}

// WithDefaults returns a copy with unset fields filled in. Unsupported baud
// rates fall back to DefaultBaudRate.
func (c Config) WithDefaults() Config {
	if c.Logger == nil {
		c.Logger = core.Logger()
	}
	if !c.BaudRate.Valid() {
		if c.BaudRate != 0 {
			c.Logger.Warn("[BT] unsupported baud rate, using default", "baud", c.BaudRate, "default", DefaultBaudRate)
		}
		c.BaudRate = DefaultBaudRate
	}
	if !c.ATBaudRate.Valid() {
		c.ATBaudRate = DefaultBaudRate
	}
	if c.Sleeper == nil {
		c.Sleeper = core.SystemSleeper
	}
	if c.MaxNameLength <= 0 {
		c.MaxNameLength = protocol.DefaultNameLength
	}
	if c.PinLength <= 0 {
		c.PinLength = protocol.DefaultPinLength
	}
	if c.MaxCommandSize <= 0 {
		c.MaxCommandSize = protocol.MaxCommandSize
	}
	if c.SettleTimeMs == 0 {
		c.SettleTimeMs = DefaultSettleTimeMs
	}
	if c.CommSleepTimeMs == 0 {
		c.CommSleepTimeMs = DefaultCommSleepTimeMs
	}
	if c.ATResponseTimeoutMs == 0 {
		c.ATResponseTimeoutMs = DefaultATResponseTimeoutMs
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = DefaultQueueSize
	}
	if c.ReceiveQueueSize <= 0 {
		c.ReceiveQueueSize = DefaultQueueSize
	}
	return c
}
