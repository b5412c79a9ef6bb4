package hc05

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hc05link/bluetooth"
	"hc05link/core"
)

const (
	testTX    core.GPIOPin = 4
	testRX    core.GPIOPin = 5
	testReset core.GPIOPin = 6
	testKey   core.GPIOPin = 7
)

type gpioEvent struct {
	pin           core.GPIOPin
	value         bool
	serialRunning bool
}

// fakeGPIO records every pin write along with whether the serial channel was
// running at that moment
type fakeGPIO struct {
	mu         sync.Mutex
	configured []core.GPIOPin
	events     []gpioEvent
	levels     map[core.GPIOPin]bool
	serial     *fakeSerial
}

func (g *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.configured = append(g.configured, pin)
	return nil
}

func (g *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	running := g.serial != nil && g.serial.Running()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.levels == nil {
		g.levels = make(map[core.GPIOPin]bool)
	}
	g.levels[pin] = value
	g.events = append(g.events, gpioEvent{pin: pin, value: value, serialRunning: running})
	return nil
}

func (g *fakeGPIO) level(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin]
}

func (g *fakeGPIO) Events() []gpioEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gpioEvent(nil), g.events...)
}

type fakeSleeper struct {
	mu     sync.Mutex
	sleeps []uint32
}

func (s *fakeSleeper) SleepMillis(ms uint32) {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, ms)
	s.mu.Unlock()
}

func (s *fakeSleeper) Sleeps() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint32(nil), s.sleeps...)
}

type serialWrite struct {
	baud uint32
	at   bool // KEY was high
	data string
}

// fakeSerial is a loopback of the module. In AT mode (KEY high) each complete
// command line is answered through reply; in communication mode written bytes
// are collected as radio traffic.
type fakeSerial struct {
	mu         sync.Mutex
	gpio       *fakeGPIO
	running    bool
	baud       uint32
	starts     []uint32
	startErr   error
	writeLimit int
	writes     []serialWrite
	radio      bytes.Buffer
	atLine     bytes.Buffer
	rx         []byte
	reply      func(cmd string) string
}

func newFakes() (*fakeGPIO, *fakeSerial) {
	g := &fakeGPIO{}
	s := &fakeSerial{gpio: g}
	g.serial = s
	return g, s
}

func (s *fakeSerial) Start(baud uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	s.baud = baud
	s.starts = append(s.starts, baud)
	return nil
}

func (s *fakeSerial) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *fakeSerial) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeSerial) Baud() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baud
}

func (s *fakeSerial) Write(data []byte, _ core.Timeout) (int, error) {
	at := s.gpio.level(testKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0, core.ErrSerialStopped
	}
	n := len(data)
	if s.writeLimit > 0 && n > s.writeLimit {
		n = s.writeLimit
	}
	s.writes = append(s.writes, serialWrite{baud: s.baud, at: at, data: string(data[:n])})
	if !at {
		s.radio.Write(data[:n])
		return n, nil
	}

	s.atLine.Write(data[:n])
	for {
		line, err := s.atLine.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			s.atLine.Reset()
			s.atLine.WriteString(line)
			break
		}
		cmd := string(bytes.TrimRight([]byte(line), "\r\n"))
		if cmd == "" {
			continue
		}
		resp := "OK\r\n"
		if s.reply != nil {
			resp = s.reply(cmd)
		}
		s.rx = append(s.rx, resp...)
	}
	return n, nil
}

func (s *fakeSerial) Read(buf []byte, timeout core.Timeout) (int, error) {
	deadline := time.Now().Add(timeout.Duration())
	for {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return 0, core.ErrSerialStopped
		}
		if len(s.rx) > 0 {
			n := copy(buf, s.rx)
			s.rx = s.rx[n:]
			s.mu.Unlock()
			return n, nil
		}
		s.mu.Unlock()
		if timeout != core.Infinite && !time.Now().Before(deadline) {
			return 0, nil
		}
		time.Sleep(200 * time.Microsecond)
	}
}

func (s *fakeSerial) ReadByte(timeout core.Timeout) (byte, error) {
	var b [1]byte
	n, err := s.Read(b[:], timeout)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, core.ErrTimeout
	}
	return b[0], nil
}

// Feed injects bytes as if received from the radio link
func (s *fakeSerial) Feed(data string) {
	s.mu.Lock()
	s.rx = append(s.rx, data...)
	s.mu.Unlock()
}

func (s *fakeSerial) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rx)
}

func (s *fakeSerial) Radio() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.radio.String()
}

func (s *fakeSerial) Writes() []serialWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]serialWrite(nil), s.writes...)
}

func (s *fakeSerial) ATWrites() []serialWrite {
	var out []serialWrite
	for _, w := range s.Writes() {
		if w.at {
			out = append(out, w)
		}
	}
	return out
}

func (s *fakeSerial) set(fn func(s *fakeSerial)) {
	s.mu.Lock()
	fn(s)
	s.mu.Unlock()
}

func testConfig(g *fakeGPIO, s *fakeSerial) *bluetooth.Config {
	return &bluetooth.Config{
		Pins:                bluetooth.Pins{TX: testTX, RX: testRX, Reset: testReset, Key: testKey},
		Serial:              s,
		GPIO:                g,
		Sleeper:             &fakeSleeper{},
		Logger:              slog.New(slog.NewTextHandler(io.Discard, nil)),
		CommSleepTimeMs:     1,
		ATResponseTimeoutMs: 200,
	}
}

func openDriver(t *testing.T, mutate func(*bluetooth.Config)) (*Driver, *fakeGPIO, *fakeSerial) {
	t.Helper()
	g, s := newFakes()
	cfg := testConfig(g, s)
	if mutate != nil {
		mutate(cfg)
	}
	d := New()
	if err := d.Open(cfg); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, g, s
}

// waitFor polls cond until it holds or two seconds pass
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
