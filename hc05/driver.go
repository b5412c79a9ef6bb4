// Package hc05 drives an HC-05 serial Bluetooth module: KEY/RESET mode
// switching, a buffered data pipeline in communication mode and AT commands
// for name, pin code and factory reset.
package hc05

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"hc05link/bluetooth"
	"hc05link/core"
	"hc05link/protocol"
)

// VariantName is the registry key for this driver
const VariantName = "hc05"

func init() {
	if err := bluetooth.Register(VariantName, func() bluetooth.Device { return New() }); err != nil {
		panic(err)
	}
}

type lifecycle int32

const (
	stateNew lifecycle = iota
	stateOpen
	stateClosed
)

// Driver implements bluetooth.Device for the HC-05. A Driver is opened once;
// after Close it cannot be reopened.
type Driver struct {
	cmdMu sync.Mutex   // serializes Open, Close and AT commands
	ioMu  sync.RWMutex // guards the queue pointers against Close
	state atomic.Int32

	cfg   bluetooth.Config
	log   *slog.Logger
	seq   *sequencer
	modes *modeMachine
	pipe  *pipeline
	live  atomic.Pointer[modeMachine] // modes, readable without cmdMu
	in    *protocol.Queue
	out   *protocol.Queue
}

var _ bluetooth.Device = (*Driver)(nil)

// New creates an unopened driver
func New() *Driver {
	return &Driver{log: core.Logger()}
}

// QueueStats is a snapshot of the send and receive queues
type QueueStats struct {
	SendQueued    int
	SendFree      int
	ReceiveQueued int
	ReceiveFree   int
}

// Open configures the pins, creates the queues, starts the workers and
// switches the module into communication mode. cfg is copied and never
// modified. When cfg.ApplyOnOpen is set, Name and PinCode are written to the
// module afterwards; a failure there is returned but leaves the driver open.
func (d *Driver) Open(cfg *bluetooth.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	switch lifecycle(d.state.Load()) {
	case stateOpen:
		return fmt.Errorf("%w: already open", bluetooth.ErrResourceUnavailable)
	case stateClosed:
		return bluetooth.ErrClosed
	}

	c := cfg.WithDefaults()
	d.cfg = c
	d.log = c.Logger

	d.seq = newSequencer(c.GPIO, c.Sleeper, c.Pins.Key, c.Pins.Reset, d.log)
	if err := d.seq.configure(); err != nil {
		return fmt.Errorf("%w: configure KEY/RESET: %w", bluetooth.ErrResourceUnavailable, err)
	}
	if pc, ok := c.Serial.(core.SerialPinConfigurer); ok {
		rts, cts := core.NoPin, core.NoPin
		if c.Pins.FlowControl {
			rts, cts = c.Pins.RTS, c.Pins.CTS
		}
		if err := pc.ConfigurePins(c.Pins.TX, c.Pins.RX, rts, cts); err != nil {
			return fmt.Errorf("%w: configure serial pins: %w", bluetooth.ErrResourceUnavailable, err)
		}
	}

	d.ioMu.Lock()
	d.in = protocol.NewQueue(c.SendQueueSize)
	d.out = protocol.NewQueue(c.ReceiveQueueSize)
	d.ioMu.Unlock()

	d.modes = newModeMachine(c.Serial, d.seq, uint32(c.BaudRate), uint32(c.ATBaudRate), c.SettleTimeMs, d.log)
	d.modes.start()
	d.live.Store(d.modes)
	d.pipe = newPipeline(c.Serial, d.modes, d.in, d.out, core.MillisToDuration(c.CommSleepTimeMs), d.log)
	d.pipe.start()

	if err := c.Serial.Start(uint32(c.BaudRate)); err != nil {
		d.abortOpen()
		return fmt.Errorf("%w: start serial: %w", bluetooth.ErrResourceUnavailable, err)
	}
	if err := d.modes.request(bluetooth.ModeReadyComm); err != nil {
		d.abortOpen()
		return err
	}
	d.pipe.resumeWorkers()
	d.state.Store(int32(stateOpen))

	d.log.Info("[HC05] opened", "baud", c.BaudRate, "at_baud", c.ATBaudRate,
		"send_queue", c.SendQueueSize, "receive_queue", c.ReceiveQueueSize)

	if c.ApplyOnOpen {
		return d.applySettingsLocked()
	}
	return nil
}

// abortOpen undoes a partial Open so it can be retried
func (d *Driver) abortOpen() {
	d.pipe.shutdown()
	_ = d.modes.request(bluetooth.ModeShuttingDown)
	d.ioMu.Lock()
	d.in, d.out = nil, nil
	d.ioMu.Unlock()
}

// Close stops the workers and the serial channel and releases the queues.
// Queued data is discarded. Calling Close again, or before Open, is a no-op.
func (d *Driver) Close() error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	prev := lifecycle(d.state.Swap(int32(stateClosed)))
	if prev != stateOpen {
		return nil
	}

	_ = d.modes.request(bluetooth.ModeShuttingDown)
	d.pipe.shutdown()

	d.ioMu.Lock()
	d.in.Reset()
	d.out.Reset()
	d.in, d.out = nil, nil
	d.ioMu.Unlock()

	d.log.Info("[HC05] closed")
	return nil
}

func (d *Driver) notOpen() error {
	if lifecycle(d.state.Load()) == stateClosed {
		return bluetooth.ErrClosed
	}
	return bluetooth.ErrNotOpen
}

func (d *Driver) checkOpen() error {
	if lifecycle(d.state.Load()) != stateOpen {
		return d.notOpen()
	}
	return nil
}

// SendBuffer queues data for the radio link. It never blocks: if the send
// queue cannot take all of data, nothing is queued.
func (d *Driver) SendBuffer(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty buffer", bluetooth.ErrInvalidArgument)
	}

	d.ioMu.RLock()
	defer d.ioMu.RUnlock()
	if d.in == nil {
		return d.notOpen()
	}
	if len(data) > d.in.Cap() {
		return fmt.Errorf("%w: %d bytes exceed send queue of %d", bluetooth.ErrInvalidArgument, len(data), d.in.Cap())
	}
	if err := d.in.Write(data); err != nil {
		return fmt.Errorf("%w: %w", bluetooth.ErrResourceUnavailable, err)
	}
	return nil
}

// SendCommandByte queues a single byte
func (d *Driver) SendCommandByte(b byte) error {
	d.ioMu.RLock()
	defer d.ioMu.RUnlock()
	if d.in == nil {
		return d.notOpen()
	}
	if err := d.in.WriteByte(b); err != nil {
		return fmt.Errorf("%w: %w", bluetooth.ErrResourceUnavailable, err)
	}
	return nil
}

// CanSend reports whether the send queue has room for at least one byte
func (d *Driver) CanSend() bool {
	d.ioMu.RLock()
	defer d.ioMu.RUnlock()
	return d.in != nil && !d.in.IsFull()
}

// CanReceive reports whether received data is waiting
func (d *Driver) CanReceive() bool {
	d.ioMu.RLock()
	defer d.ioMu.RUnlock()
	return d.out != nil && !d.out.IsEmpty()
}

// ReadBuffer moves up to len(buf) received bytes into buf. It returns
// ErrResourceUnavailable when nothing has been received.
func (d *Driver) ReadBuffer(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("%w: empty buffer", bluetooth.ErrInvalidArgument)
	}

	d.ioMu.RLock()
	defer d.ioMu.RUnlock()
	if d.out == nil {
		return 0, d.notOpen()
	}
	n := d.out.Read(buf)
	if n == 0 {
		return 0, fmt.Errorf("%w: no data received", bluetooth.ErrResourceUnavailable)
	}
	return n, nil
}

// Mode returns the current operating mode, ModeUnknown before Open
func (d *Driver) Mode() bluetooth.Mode {
	modes := d.live.Load()
	if modes == nil {
		return bluetooth.ModeUnknown
	}
	return modes.Mode()
}

// QueueStats returns the fill level of both queues
func (d *Driver) QueueStats() QueueStats {
	d.ioMu.RLock()
	defer d.ioMu.RUnlock()
	var s QueueStats
	if d.in != nil {
		s.SendQueued, s.SendFree = d.in.Available(), d.in.Free()
	}
	if d.out != nil {
		s.ReceiveQueued, s.ReceiveFree = d.out.Available(), d.out.Free()
	}
	return s
}

// EnterATMode switches the module to AT command mode and leaves it there.
// The data pipeline is paused until EnterCommMode or the next AT command.
func (d *Driver) EnterATMode() error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.modes.request(bluetooth.ModeReadyATCommand)
}

// EnterCommMode switches the module back to communication mode
func (d *Driver) EnterCommMode() error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.modes.request(bluetooth.ModeReadyComm)
}
