package hc05

import (
	"errors"
	"strings"
	"testing"
	"time"

	"hc05link/bluetooth"
	"hc05link/protocol"
)

func TestSetNameWireFormat(t *testing.T) {
	d, g, s := openDriver(t, nil)

	if err := d.SetName("Robo"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}

	at := s.ATWrites()
	if len(at) != 1 {
		t.Fatalf("got %d AT writes, want 1: %+v", len(at), at)
	}
	if at[0].data != "AT+NAME=Robo\r\n" {
		t.Errorf("wire frame = %q, want %q", at[0].data, "AT+NAME=Robo\r\n")
	}
	if at[0].baud != uint32(bluetooth.DefaultBaudRate) {
		t.Errorf("AT baud = %d, want %d", at[0].baud, bluetooth.DefaultBaudRate)
	}
	if d.Mode() != bluetooth.ModeReadyComm {
		t.Errorf("Mode() = %v after command, want ready-communication", d.Mode())
	}
	if g.level(testKey) {
		t.Error("KEY still high after returning to communication mode")
	}
}

func TestSetNameLeadingTerminator(t *testing.T) {
	d, _, s := openDriver(t, func(c *bluetooth.Config) { c.LeadingTerminator = true })

	if err := d.SetName("Robo"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	at := s.ATWrites()
	if len(at) != 1 || at[0].data != "\r\nAT+NAME=Robo\r\n" {
		t.Errorf("AT writes = %+v, want a single CR LF prefixed frame", at)
	}
}

func TestCommandUsesATBaudRate(t *testing.T) {
	d, _, s := openDriver(t, func(c *bluetooth.Config) {
		c.BaudRate = bluetooth.Baud9600
		c.ATBaudRate = bluetooth.Baud38400
	})
	if s.Baud() != 9600 {
		t.Fatalf("communication baud = %d, want 9600", s.Baud())
	}
	if err := d.TestAT(); err != nil {
		t.Fatalf("TestAT failed: %v", err)
	}
	at := s.ATWrites()
	if len(at) != 1 || at[0].baud != 38400 || at[0].data != "AT\r\n" {
		t.Errorf("AT writes = %+v, want AT at 38400", at)
	}
	if s.Baud() != 9600 {
		t.Errorf("baud after command = %d, want 9600", s.Baud())
	}
}

func TestSetPinCodeWrongLength(t *testing.T) {
	d, g, s := openDriver(t, nil)
	events, writes := len(g.Events()), len(s.Writes())

	for _, pin := range []string{"12345", "123", ""} {
		if err := d.SetPinCode(pin); !errors.Is(err, bluetooth.ErrInvalidArgument) {
			t.Errorf("SetPinCode(%q) = %v, want ErrInvalidArgument", pin, err)
		}
	}
	if n := len(g.Events()); n != events {
		t.Errorf("pin events went from %d to %d, want no mode switch", events, n)
	}
	if n := len(s.Writes()); n != writes {
		t.Errorf("serial writes went from %d to %d, want none", writes, n)
	}
	if d.Mode() != bluetooth.ModeReadyComm {
		t.Errorf("Mode() = %v, want ready-communication", d.Mode())
	}
}

func TestSetPinCode(t *testing.T) {
	d, _, s := openDriver(t, func(c *bluetooth.Config) { c.PinLength = 6 })

	if err := d.SetPinCode("123456"); err != nil {
		t.Fatalf("SetPinCode failed: %v", err)
	}
	at := s.ATWrites()
	if len(at) != 1 || at[0].data != "AT+PIN=123456\r\n" {
		t.Errorf("AT writes = %+v", at)
	}
}

func TestSetNameTooLong(t *testing.T) {
	d, _, s := openDriver(t, func(c *bluetooth.Config) { c.MaxNameLength = 4 })

	if err := d.SetName("Robot"); !errors.Is(err, bluetooth.ErrInvalidArgument) {
		t.Fatalf("SetName = %v, want ErrInvalidArgument", err)
	}
	if len(s.ATWrites()) != 0 {
		t.Error("oversized name reached the module")
	}
}

func TestResetModuleSettings(t *testing.T) {
	d, _, s := openDriver(t, nil)

	if err := d.ResetModuleSettings(); err != nil {
		t.Fatalf("ResetModuleSettings failed: %v", err)
	}
	at := s.ATWrites()
	if len(at) != 1 || at[0].data != "AT+ORGL\r\n" {
		t.Errorf("AT writes = %+v", at)
	}
}

func TestCommandProtocolMismatch(t *testing.T) {
	d, _, s := openDriver(t, nil)
	s.set(func(s *fakeSerial) {
		s.reply = func(string) string { return "ERROR:(0)\r\n" }
	})

	if err := d.SetName("Robo"); !errors.Is(err, bluetooth.ErrProtocolMismatch) {
		t.Fatalf("SetName = %v, want ErrProtocolMismatch", err)
	}
	if d.Mode() != bluetooth.ModeReadyComm {
		t.Errorf("Mode() = %v after failed command, want ready-communication", d.Mode())
	}
}

func TestCommandNoReply(t *testing.T) {
	d, _, s := openDriver(t, func(c *bluetooth.Config) { c.ATResponseTimeoutMs = 20 })
	s.set(func(s *fakeSerial) {
		s.reply = func(string) string { return "" }
	})

	start := time.Now()
	if err := d.TestAT(); !errors.Is(err, bluetooth.ErrProtocolMismatch) {
		t.Fatalf("TestAT = %v, want ErrProtocolMismatch", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("command took %v, want about the 20ms response timeout", elapsed)
	}
	if d.Mode() != bluetooth.ModeReadyComm {
		t.Errorf("Mode() = %v, want ready-communication", d.Mode())
	}
}

func TestSkipResponseCheck(t *testing.T) {
	d, _, s := openDriver(t, func(c *bluetooth.Config) { c.SkipResponseCheck = true })
	s.set(func(s *fakeSerial) {
		s.reply = func(string) string { return "FAIL\r\n" }
	})

	if err := d.SetName("Robo"); err != nil {
		t.Fatalf("SetName = %v, want nil when the reply is not checked", err)
	}
}

func TestCommandShortWrite(t *testing.T) {
	d, _, s := openDriver(t, nil)
	s.set(func(s *fakeSerial) { s.writeLimit = 3 })

	if err := d.SetName("Robo"); !errors.Is(err, bluetooth.ErrResourceUnavailable) {
		t.Fatalf("SetName = %v, want ErrResourceUnavailable", err)
	}
	if d.Mode() != bluetooth.ModeReadyComm {
		t.Errorf("Mode() = %v after short write, want ready-communication", d.Mode())
	}
}

func TestCommandDrainsStaleInput(t *testing.T) {
	d, _, s := openDriver(t, nil)

	if err := d.EnterATMode(); err != nil {
		t.Fatalf("EnterATMode failed: %v", err)
	}
	// Leftovers that would otherwise be parsed as the reply.
	s.Feed("ERROR:(1D)\r\n")

	if err := d.TestAT(); err != nil {
		t.Fatalf("TestAT = %v, want stale input discarded", err)
	}
	if d.Mode() != bluetooth.ModeReadyComm {
		t.Errorf("Mode() = %v, want ready-communication", d.Mode())
	}
}

func TestQueryNameAndVersion(t *testing.T) {
	d, _, s := openDriver(t, nil)
	s.set(func(s *fakeSerial) {
		s.reply = func(cmd string) string {
			switch cmd {
			case protocol.PrefixQueryName:
				return "+NAME:Robo\r\nOK\r\n"
			case protocol.PrefixVersion:
				return "+VERSION:2.0-20100601\r\nOK\r\n"
			}
			return "ERROR:(0)\r\n"
		}
	})

	name, err := d.QueryName()
	if err != nil || name != "Robo" {
		t.Errorf("QueryName() = %q, %v; want Robo", name, err)
	}
	version, err := d.Version()
	if err != nil || version != "2.0-20100601" {
		t.Errorf("Version() = %q, %v; want 2.0-20100601", version, err)
	}
}

func TestSetUARTAndRole(t *testing.T) {
	d, _, s := openDriver(t, nil)

	if err := d.SetUART(bluetooth.Baud115200, 0, 0); err != nil {
		t.Fatalf("SetUART failed: %v", err)
	}
	if err := d.SetRole(1); err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if err := d.SetUART(bluetooth.BaudRate(1234), 0, 0); !errors.Is(err, bluetooth.ErrInvalidArgument) {
		t.Errorf("SetUART(1234) = %v, want ErrInvalidArgument", err)
	}
	if err := d.SetRole(3); !errors.Is(err, bluetooth.ErrInvalidArgument) {
		t.Errorf("SetRole(3) = %v, want ErrInvalidArgument", err)
	}

	var got []string
	for _, w := range s.ATWrites() {
		got = append(got, strings.TrimSpace(w.data))
	}
	want := []string{"AT+UART=115200,0,0", "AT+ROLE=1"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("AT writes = %v, want %v", got, want)
	}
}

func TestApplyOnOpen(t *testing.T) {
	_, _, s := openDriver(t, func(c *bluetooth.Config) {
		c.Name = "Robo"
		c.PinCode = "4321"
		c.ApplyOnOpen = true
	})

	var got []string
	for _, w := range s.ATWrites() {
		got = append(got, w.data)
	}
	want := []string{"AT+NAME=Robo\r\n", "AT+PIN=4321\r\n"}
	if strings.Join(got, "") != strings.Join(want, "") {
		t.Errorf("AT writes = %q, want %q", got, want)
	}
}

func TestExplicitATModeStaysUntilCommand(t *testing.T) {
	d, _, s := openDriver(t, nil)

	if err := d.EnterATMode(); err != nil {
		t.Fatalf("EnterATMode failed: %v", err)
	}
	if d.Mode() != bluetooth.ModeReadyATCommand {
		t.Fatalf("Mode() = %v, want ready-at-command", d.Mode())
	}
	if err := d.SendBuffer([]byte("queued")); err != nil {
		t.Fatalf("SendBuffer failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if r := s.Radio(); r != "" {
		t.Fatalf("radio got %q while in AT mode", r)
	}

	if err := d.TestAT(); err != nil {
		t.Fatalf("TestAT failed: %v", err)
	}
	waitFor(t, "queued data after the switch back", func() bool { return s.Radio() == "queued" })
}

// Full lifecycle: open, rename, exchange data, close.
func TestLifecycle(t *testing.T) {
	g, s := newFakes()
	cfg := testConfig(g, s)
	cfg.Name, cfg.PinCode, cfg.BaudRate = "Pumukli", "1234", bluetooth.Baud38400
	d := New()
	if err := d.Open(cfg); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := d.SetName("Robo"); err != nil {
		t.Fatalf("SetName failed: %v", err)
	}
	if at := s.ATWrites(); len(at) != 1 || at[0].data != "AT+NAME=Robo\r\n" {
		t.Fatalf("AT writes = %+v, want AT+NAME=Robo", at)
	}
	if err := d.SendBuffer([]byte("ping")); err != nil {
		t.Fatalf("SendBuffer failed: %v", err)
	}
	waitFor(t, "ping on the radio", func() bool { return s.Radio() == "ping" })

	s.Feed("pong")
	waitFor(t, "pong received", d.CanReceive)
	buf := make([]byte, 8)
	var got strings.Builder
	waitFor(t, "pong read", func() bool {
		if n, err := d.ReadBuffer(buf); err == nil {
			got.Write(buf[:n])
		}
		return got.String() == "pong"
	})

	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Running() {
		t.Error("serial running after Close")
	}
}
