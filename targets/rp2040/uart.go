//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"sync/atomic"
	"time"

	"tinygo.org/x/drivers"

	"hc05link/core"
)

var errInvalidPin = errors.New("gpio: invalid pin")

// UARTChannel implements core.SerialDriver and core.SerialPinConfigurer on a
// hardware UART. Received bytes are buffered by the machine package's
// interrupt handler; reads poll Buffered and yield to the scheduler.
type UARTChannel struct {
	uart *machine.UART
	bus  drivers.UART

	tx, rx, rts, cts machine.Pin
	running          atomic.Bool
}

var (
	_ core.SerialDriver        = (*UARTChannel)(nil)
	_ core.SerialPinConfigurer = (*UARTChannel)(nil)
)

// NewUARTChannel wraps a UART peripheral, e.g. machine.UART0
func NewUARTChannel(uart *machine.UART) *UARTChannel {
	return &UARTChannel{
		uart: uart,
		bus:  uart,
		tx:   machine.NoPin,
		rx:   machine.NoPin,
		rts:  machine.NoPin,
		cts:  machine.NoPin,
	}
}

// ConfigurePins records the UART pin mux; it takes effect on Start
func (u *UARTChannel) ConfigurePins(tx, rx, rts, cts core.GPIOPin) error {
	if !tx.Valid() || !rx.Valid() {
		return errInvalidPin
	}
	u.tx, u.rx = machine.Pin(tx), machine.Pin(rx)
	u.rts, u.cts = machine.NoPin, machine.NoPin
	if rts.Valid() && cts.Valid() {
		u.rts, u.cts = machine.Pin(rts), machine.Pin(cts)
	}
	return nil
}

// Start (re)configures the UART at baud
func (u *UARTChannel) Start(baud uint32) error {
	err := u.uart.Configure(machine.UARTConfig{
		BaudRate: baud,
		TX:       u.tx,
		RX:       u.rx,
		RTS:      u.rts,
		CTS:      u.cts,
	})
	if err != nil {
		return err
	}
	u.running.Store(true)
	return nil
}

// Stop marks the channel stopped and discards buffered input. The peripheral
// stays clocked; the next Start reprograms the divisor.
func (u *UARTChannel) Stop() error {
	u.running.Store(false)
	for u.bus.Buffered() > 0 {
		if _, err := u.uart.ReadByte(); err != nil {
			break
		}
	}
	return nil
}

// Write blocks until the TX FIFO accepted all of data
func (u *UARTChannel) Write(data []byte, _ core.Timeout) (int, error) {
	if !u.running.Load() {
		return 0, core.ErrSerialStopped
	}
	return u.bus.Write(data)
}

// Read waits up to timeout for input and returns what is buffered
func (u *UARTChannel) Read(buf []byte, timeout core.Timeout) (int, error) {
	if !u.running.Load() {
		return 0, core.ErrSerialStopped
	}
	if !u.wait(timeout) {
		return 0, nil
	}
	return u.bus.Read(buf)
}

// ReadByte returns one byte or core.ErrTimeout
func (u *UARTChannel) ReadByte(timeout core.Timeout) (byte, error) {
	if !u.running.Load() {
		return 0, core.ErrSerialStopped
	}
	if !u.wait(timeout) {
		return 0, core.ErrTimeout
	}
	return u.uart.ReadByte()
}

func (u *UARTChannel) wait(timeout core.Timeout) bool {
	deadline := time.Now().Add(timeout.Duration())
	for u.bus.Buffered() == 0 {
		if !u.running.Load() {
			return false
		}
		if timeout != core.Infinite && !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
