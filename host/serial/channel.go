package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"hc05link/core"
)

// Channel implements core.SerialDriver on top of a Backend
type Channel struct {
	backend Backend
	cfg     Config
	log     *slog.Logger

	mu   sync.Mutex // guards port, baud and the pump channels
	port Port
	baud uint32
	quit chan struct{}
	done chan struct{}

	rx       *ringbuffer.RingBuffer
	readable chan struct{}
}

var _ core.SerialDriver = (*Channel)(nil)

// NewChannel creates a stopped channel
func NewChannel(b Backend, cfg *Config, log *slog.Logger) *Channel {
	if cfg == nil {
		cfg = &Config{}
	}
	if log == nil {
		log = core.Logger()
	}
	c := cfg.withDefaults()
	return &Channel{
		backend:  b,
		cfg:      c,
		log:      log,
		rx:       ringbuffer.New(c.RxBufferSize),
		readable: make(chan struct{}, 1),
	}
}

// Start configures the device at baud and starts the receive pump. A running
// channel is stopped first.
func (c *Channel) Start(baud uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stopLocked(); err != nil {
		c.log.Warn("[SERIAL] release before restart failed", "error", err)
	}
	port, err := c.backend.Configure(baud)
	if err != nil {
		return fmt.Errorf("serial: configure %s at %d baud: %w", c.cfg.Device, baud, err)
	}
	if err := port.Flush(); err != nil {
		c.log.Debug("[SERIAL] flush failed", "error", err)
	}
	c.rx.Reset()

	c.port = port
	c.baud = baud
	c.quit = make(chan struct{})
	c.done = make(chan struct{})
	go c.pump(port, c.quit, c.done)

	c.log.Debug("[SERIAL] started", "device", c.cfg.Device, "baud", baud)
	return nil
}

// Stop ends the receive pump and releases the device. Stopping a stopped
// channel does nothing.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

func (c *Channel) stopLocked() error {
	if c.port == nil {
		return nil
	}
	close(c.quit)
	<-c.done
	err := c.backend.Release(c.port)
	c.port = nil
	c.baud = 0
	c.log.Debug("[SERIAL] stopped", "device", c.cfg.Device)
	return err
}

// Baud returns the active rate, 0 when stopped
func (c *Channel) Baud() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baud
}

func (c *Channel) current() (Port, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil, nil, core.ErrSerialStopped
	}
	return c.port, c.quit, nil
}

// Write hands data to the OS driver. The timeout is not used: the kernel
// buffers the write.
func (c *Channel) Write(data []byte, _ core.Timeout) (int, error) {
	port, _, err := c.current()
	if err != nil {
		return 0, err
	}
	return port.Write(data)
}

// Read returns buffered input, waiting up to timeout for the first byte.
// It returns (0, nil) when nothing arrived in time.
func (c *Channel) Read(buf []byte, timeout core.Timeout) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	_, quit, err := c.current()
	if err != nil {
		return 0, err
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout.Duration())
		defer t.Stop()
		deadline = t.C
	}
	for {
		if n, _ := c.rx.Read(buf); n > 0 {
			return n, nil
		}
		if timeout == core.Immediate {
			return 0, nil
		}
		select {
		case <-c.readable:
		case <-deadline:
			return 0, nil
		case <-quit:
			return 0, core.ErrSerialStopped
		}
	}
}

// ReadByte returns one byte or core.ErrTimeout
func (c *Channel) ReadByte(timeout core.Timeout) (byte, error) {
	var b [1]byte
	n, err := c.Read(b[:], timeout)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, core.ErrTimeout
	}
	return b[0], nil
}

func (c *Channel) pump(port Port, quit, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 256)
	for {
		select {
		case <-quit:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			c.push(buf[:n], quit)
		}
		if err != nil && !isReadTimeout(err) {
			c.log.Error("[SERIAL] read failed, receive pump stopped", "device", c.cfg.Device, "error", err)
			return
		}
	}
}

// push stores data in the ring buffer, waiting for room while the reader
// catches up
func (c *Channel) push(data []byte, quit chan struct{}) {
	for len(data) > 0 {
		n, _ := c.rx.Write(data)
		data = data[n:]
		if n > 0 {
			select {
			case c.readable <- struct{}{}:
			default:
			}
		}
		if len(data) > 0 {
			select {
			case <-quit:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// tarm/serial reports an expired VTIME read as io.EOF
func isReadTimeout(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded)
}
