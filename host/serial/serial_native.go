//go:build !wasm

package serial

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tarm/serial"
)

// nativeBackend reopens the device through tarm/serial on every Start and
// closes it on Stop
type nativeBackend struct {
	cfg Config
}

// NewNative creates a channel on a plain serial device. KEY and RESET must be
// driven by a separate GPIODriver.
func NewNative(cfg *Config, log *slog.Logger) (*Channel, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, fmt.Errorf("serial: device path is required")
	}
	c := cfg.withDefaults()
	return NewChannel(&nativeBackend{cfg: c}, &c, log), nil
}

func (b *nativeBackend) Configure(baud uint32) (Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        b.cfg.Device,
		Baud:        int(baud),
		ReadTimeout: time.Duration(b.cfg.ReadTimeout) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", b.cfg.Device, err)
	}
	return port, nil
}

func (b *nativeBackend) Release(p Port) error {
	return p.Close()
}
