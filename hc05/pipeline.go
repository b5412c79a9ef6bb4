package hc05

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"hc05link/bluetooth"
	"hc05link/core"
	"hc05link/protocol"
)

const (
	chunkSize          = 16
	workerWriteTimeout = core.Timeout(time.Second)
)

// pipeline runs the sender and receiver workers. Both start suspended and
// only move bytes while the mode machine reports ReadyComm.
type pipeline struct {
	serial core.SerialDriver
	modes  *modeMachine
	in     *protocol.Queue // application -> radio
	out    *protocol.Queue // radio -> application
	poll   time.Duration
	log    *slog.Logger

	resume     chan struct{}
	stop       chan struct{}
	resumeOnce sync.Once
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

func newPipeline(serial core.SerialDriver, modes *modeMachine, in, out *protocol.Queue, poll time.Duration, log *slog.Logger) *pipeline {
	if poll <= 0 {
		poll = time.Millisecond
	}
	return &pipeline{
		serial: serial,
		modes:  modes,
		in:     in,
		out:    out,
		poll:   poll,
		log:    log,
		resume: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func (p *pipeline) start() {
	p.wg.Add(2)
	go p.sender()
	go p.receiver()
}

func (p *pipeline) resumeWorkers() {
	p.resumeOnce.Do(func() { close(p.resume) })
}

// shutdown stops both workers and waits for them to exit
func (p *pipeline) shutdown() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *pipeline) waitResume() bool {
	select {
	case <-p.resume:
		return true
	case <-p.stop:
		return false
	}
}

func (p *pipeline) stopping() bool {
	select {
	case <-p.stop:
		return true
	default:
		return false
	}
}

func (p *pipeline) sender() {
	defer p.wg.Done()
	if !p.waitResume() {
		return
	}
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	buf := make([]byte, chunkSize)
	var pending []byte // popped but not yet written, goes out before the queue
	for !p.stopping() {
		if p.modes.Mode() == bluetooth.ModeReadyComm && (len(pending) > 0 || !p.in.IsEmpty()) {
			var progressed bool
			pending, progressed = p.sendOnce(buf, pending)
			if progressed {
				continue
			}
		}
		select {
		case <-p.stop:
			return
		case <-p.in.Readable():
		case <-ticker.C:
		}
	}
}

func (p *pipeline) sendOnce(buf, pending []byte) ([]byte, bool) {
	p.modes.gate.RLock()
	defer p.modes.gate.RUnlock()

	if p.modes.Mode() != bluetooth.ModeReadyComm {
		return pending, false
	}
	if len(pending) == 0 {
		n := p.in.Read(buf)
		if n == 0 {
			return nil, false
		}
		pending = buf[:n]
	}

	n, err := p.serial.Write(pending, workerWriteTimeout)
	if err != nil {
		p.log.Debug("[HC05] sender write", "written", n, "pending", len(pending), "error", err)
	}
	return pending[n:], n > 0
}

func (p *pipeline) receiver() {
	defer p.wg.Done()
	if !p.waitResume() {
		return
	}
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	buf := make([]byte, chunkSize)
	for !p.stopping() {
		// A full output queue stalls here until the application reads.
		if p.modes.Mode() == bluetooth.ModeReadyComm && !p.out.IsFull() {
			if p.receiveOnce(buf) {
				continue
			}
		}
		select {
		case <-p.stop:
			return
		case <-p.out.Writable():
		case <-ticker.C:
		}
	}
}

func (p *pipeline) receiveOnce(buf []byte) bool {
	p.modes.gate.RLock()
	defer p.modes.gate.RUnlock()

	if p.modes.Mode() != bluetooth.ModeReadyComm {
		return false
	}
	free := p.out.Free()
	if free == 0 {
		return false
	}
	if free < len(buf) {
		buf = buf[:free]
	}

	n, err := p.serial.Read(buf, core.Timeout(p.poll))
	if err != nil && !errors.Is(err, core.ErrSerialStopped) {
		p.log.Debug("[HC05] receiver read", "error", err)
	}
	if n == 0 {
		return false
	}
	if err := p.out.Write(buf[:n]); err != nil {
		p.log.Error("[HC05] receive queue overflow", "bytes", n, "error", err)
	}
	return true
}
