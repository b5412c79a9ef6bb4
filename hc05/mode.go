package hc05

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"hc05link/bluetooth"
	"hc05link/core"
)

type modeRequest struct {
	target bluetooth.Mode
	done   chan error
}

// modeMachine owns the operating mode. Transitions are requested over a
// channel and applied one at a time by the run goroutine, so the mode has a
// single writer. Pipeline workers read the mode atomically and hold gate for
// reading while they move bytes; a transition takes gate for writing after
// leaving ReadyComm, so no byte crosses a mode switch.
type modeMachine struct {
	mode atomic.Int32
	gate sync.RWMutex

	requests chan modeRequest
	stopped  chan struct{}

	serial   core.SerialDriver
	seq      *sequencer
	commBaud uint32
	atBaud   uint32
	settleMs uint32
	log      *slog.Logger
}

func newModeMachine(serial core.SerialDriver, seq *sequencer, commBaud, atBaud, settleMs uint32, log *slog.Logger) *modeMachine {
	m := &modeMachine{
		requests: make(chan modeRequest),
		stopped:  make(chan struct{}),
		serial:   serial,
		seq:      seq,
		commBaud: commBaud,
		atBaud:   atBaud,
		settleMs: settleMs,
		log:      log,
	}
	m.mode.Store(int32(bluetooth.ModeInitializing))
	return m
}

func (m *modeMachine) start() {
	go m.run()
}

func (m *modeMachine) run() {
	defer close(m.stopped)
	for req := range m.requests {
		req.done <- m.apply(req.target)
		if req.target == bluetooth.ModeShuttingDown {
			return
		}
	}
}

// Mode returns the current operating mode
func (m *modeMachine) Mode() bluetooth.Mode {
	return bluetooth.Mode(m.mode.Load())
}

// request blocks until the transition has run to completion. A transition
// cannot be cancelled once the run goroutine picked it up.
func (m *modeMachine) request(target bluetooth.Mode) error {
	done := make(chan error, 1)
	select {
	case m.requests <- modeRequest{target: target, done: done}:
	case <-m.stopped:
		return bluetooth.ErrClosed
	}
	return <-done
}

func (m *modeMachine) apply(target bluetooth.Mode) error {
	switch target {
	case bluetooth.ModeReadyComm, bluetooth.ModeReadyATCommand:
		if m.Mode() == target {
			return nil
		}
		from := m.Mode()

		// Workers see Unknown and skip their cycle; wait for in-flight transfers.
		m.mode.Store(int32(bluetooth.ModeUnknown))
		m.gate.Lock()
		defer m.gate.Unlock()

		m.stopSerial()
		pins, baud := targetCommunication, m.commBaud
		if target == bluetooth.ModeReadyATCommand {
			pins, baud = targetATCommand, m.atBaud
		}
		m.seq.assertMode(pins, m.settleMs)
		if err := m.serial.Start(baud); err != nil {
			m.log.Warn("[HC05] serial start failed", "baud", baud, "error", err)
		}

		m.mode.Store(int32(target))
		m.log.Info("[HC05] mode changed", "from", from, "to", target, "baud", baud)
		return nil

	case bluetooth.ModeShuttingDown:
		m.mode.Store(int32(bluetooth.ModeShuttingDown))
		m.gate.Lock()
		defer m.gate.Unlock()
		m.stopSerial()
		return nil

	default:
		return fmt.Errorf("%w: cannot enter mode %s", bluetooth.ErrInvalidArgument, target)
	}
}

func (m *modeMachine) stopSerial() {
	if err := m.serial.Stop(); err != nil {
		m.log.Warn("[HC05] serial stop failed", "error", err)
	}
}
