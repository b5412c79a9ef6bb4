//go:build !wasm

package serial

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"

	"hc05link/bluetooth"
	"hc05link/core"
)

// ModemChannel is a serial channel whose adapter also drives the module's
// KEY and RESET lines from DTR and RTS. The device stays open across Stop so
// the control lines keep their level while the pin sequence runs; baud
// changes go through SetMode.
type ModemChannel struct {
	*Channel
	lines *modemBackend
}

var (
	_ core.SerialDriver = (*ModemChannel)(nil)
	_ core.GPIODriver   = (*ModemChannel)(nil)
)

// NewModem creates a modem channel. The device is opened lazily by the first
// pin or Start call.
func NewModem(cfg *Config, log *slog.Logger) (*ModemChannel, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, fmt.Errorf("serial: device path is required")
	}
	c := cfg.withDefaults()
	b := &modemBackend{cfg: c}
	return &ModemChannel{Channel: NewChannel(b, &c, log), lines: b}, nil
}

// ConfigureOutput accepts PinDTR and PinRTS
func (m *ModemChannel) ConfigureOutput(pin core.GPIOPin) error {
	if pin != PinDTR && pin != PinRTS {
		return fmt.Errorf("serial: pin %d is not a modem control line", pin)
	}
	_, err := m.lines.ensureOpen()
	return err
}

// SetPin drives DTR or RTS
func (m *ModemChannel) SetPin(pin core.GPIOPin, value bool) error {
	port, err := m.lines.ensureOpen()
	if err != nil {
		return err
	}
	if m.lines.cfg.InvertLines {
		value = !value
	}
	switch pin {
	case PinDTR:
		return port.SetDTR(value)
	case PinRTS:
		return port.SetRTS(value)
	}
	return fmt.Errorf("serial: pin %d is not a modem control line", pin)
}

// Close stops the channel and closes the device
func (m *ModemChannel) Close() error {
	if err := m.Channel.Stop(); err != nil {
		return err
	}
	return m.lines.close()
}

type modemBackend struct {
	cfg Config

	mu   sync.Mutex
	port serial.Port
}

func modeFor(baud uint32) *serial.Mode {
	return &serial.Mode{
		BaudRate: int(baud),
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func (b *modemBackend) ensureOpen() (serial.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked(uint32(bluetooth.DefaultBaudRate))
}

func (b *modemBackend) openLocked(baud uint32) (serial.Port, error) {
	if b.port != nil {
		return b.port, nil
	}
	port, err := serial.Open(b.cfg.Device, modeFor(baud))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", b.cfg.Device, err)
	}
	if err := port.SetReadTimeout(time.Duration(b.cfg.ReadTimeout) * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	b.port = port
	return port, nil
}

func (b *modemBackend) Configure(baud uint32) (Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	port, err := b.openLocked(baud)
	if err != nil {
		return nil, err
	}
	if err := port.SetMode(modeFor(baud)); err != nil {
		return nil, fmt.Errorf("failed to set %d baud: %w", baud, err)
	}
	return modemPort{port}, nil
}

// Release keeps the device open; DTR and RTS must hold their level
func (b *modemBackend) Release(Port) error {
	return nil
}

func (b *modemBackend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return nil
	}
	err := b.port.Close()
	b.port = nil
	return err
}

// modemPort adapts go.bug.st/serial to Port
type modemPort struct {
	serial.Port
}

func (p modemPort) Flush() error {
	return p.ResetInputBuffer()
}
