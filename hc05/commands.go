package hc05

import (
	"errors"
	"fmt"
	"time"

	"hc05link/bluetooth"
	"hc05link/core"
	"hc05link/protocol"
)

// drainLimit bounds how many stale bytes are discarded before a command
const drainLimit = 256

// SetName writes the advertised device name (AT+NAME=)
func (d *Driver) SetName(name string) error {
	_, err := d.command(func(c *bluetooth.Config) (protocol.Frame, error) {
		return protocol.SetNameFrame(name, c.MaxNameLength)
	})
	return err
}

// SetPinCode writes the pairing pin (AT+PIN=). The pin must have exactly the
// configured length; otherwise nothing is sent and the mode is untouched.
func (d *Driver) SetPinCode(pin string) error {
	_, err := d.command(func(c *bluetooth.Config) (protocol.Frame, error) {
		return protocol.SetPinFrame(pin, c.PinLength)
	})
	return err
}

// ResetModuleSettings restores the module factory settings (AT+ORGL)
func (d *Driver) ResetModuleSettings() error {
	_, err := d.command(staticFrame(protocol.ResetDefaultsFrame()))
	return err
}

// TestAT sends the bare AT probe
func (d *Driver) TestAT() error {
	_, err := d.command(staticFrame(protocol.TestFrame()))
	return err
}

// QueryName reads the name stored in the module
func (d *Driver) QueryName() (string, error) {
	resp, err := d.command(staticFrame(protocol.QueryNameFrame()))
	if err != nil {
		return "", err
	}
	name, ok := resp.Value("+NAME")
	if !ok {
		return "", fmt.Errorf("%w: no +NAME in reply %q", bluetooth.ErrProtocolMismatch, resp.Lines)
	}
	return name, nil
}

// Version reads the module firmware version
func (d *Driver) Version() (string, error) {
	resp, err := d.command(staticFrame(protocol.VersionFrame()))
	if err != nil {
		return "", err
	}
	if v, ok := resp.Value("+VERSION"); ok {
		return v, nil
	}
	if len(resp.Lines) > 0 {
		return resp.Lines[0], nil
	}
	return "", fmt.Errorf("%w: empty version reply", bluetooth.ErrProtocolMismatch)
}

// SetUART changes the communication mode UART parameters stored in the module.
// The new rate only applies after the module restarts and the driver keeps
// using the rate it was opened with.
func (d *Driver) SetUART(baud bluetooth.BaudRate, stopBits, parity int) error {
	_, err := d.command(func(*bluetooth.Config) (protocol.Frame, error) {
		if !baud.Valid() {
			return protocol.Frame{}, fmt.Errorf("%w: baud %d", protocol.ErrBadParameter, baud)
		}
		return protocol.SetUARTFrame(uint32(baud), stopBits, parity)
	})
	return err
}

// SetRole selects slave (0), master (1) or slave-loop (2)
func (d *Driver) SetRole(role int) error {
	_, err := d.command(func(*bluetooth.Config) (protocol.Frame, error) {
		return protocol.SetRoleFrame(role)
	})
	return err
}

// SendCommand runs an arbitrary AT frame and returns the parsed reply
func (d *Driver) SendCommand(f protocol.Frame) (protocol.Response, error) {
	return d.command(staticFrame(f))
}

// ApplySettings writes the configured Name and PinCode, skipping empty ones
func (d *Driver) ApplySettings() error {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.applySettingsLocked()
}

func (d *Driver) applySettingsLocked() error {
	if d.cfg.Name != "" {
		f, err := protocol.SetNameFrame(d.cfg.Name, d.cfg.MaxNameLength)
		if err != nil {
			return fmt.Errorf("%w: %w", bluetooth.ErrInvalidArgument, err)
		}
		if _, err := d.execLocked(f); err != nil {
			return err
		}
	}
	if d.cfg.PinCode != "" {
		f, err := protocol.SetPinFrame(d.cfg.PinCode, d.cfg.PinLength)
		if err != nil {
			return fmt.Errorf("%w: %w", bluetooth.ErrInvalidArgument, err)
		}
		if _, err := d.execLocked(f); err != nil {
			return err
		}
	}
	return nil
}

type frameBuilder func(*bluetooth.Config) (protocol.Frame, error)

func staticFrame(f protocol.Frame) frameBuilder {
	return func(*bluetooth.Config) (protocol.Frame, error) { return f, nil }
}

// command validates and runs one AT command under cmdMu. Argument errors are
// reported before any pin or serial activity.
func (d *Driver) command(build frameBuilder) (protocol.Response, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	if err := d.checkOpen(); err != nil {
		return protocol.Response{}, err
	}
	f, err := build(&d.cfg)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %w", bluetooth.ErrInvalidArgument, err)
	}
	return d.execLocked(f)
}

// execLocked switches to AT mode, writes the frame, checks the reply and
// always returns the module to communication mode.
func (d *Driver) execLocked(f protocol.Frame) (protocol.Response, error) {
	wire, err := f.Encode(d.cfg.MaxCommandSize, d.cfg.LeadingTerminator)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%w: %w", bluetooth.ErrInvalidArgument, err)
	}

	if d.modes.Mode() != bluetooth.ModeReadyATCommand {
		if err := d.modes.request(bluetooth.ModeReadyATCommand); err != nil {
			return protocol.Response{}, err
		}
	}
	defer func() {
		if err := d.modes.request(bluetooth.ModeReadyComm); err != nil {
			d.log.Warn("[HC05] return to communication mode failed", "error", err)
		}
	}()

	d.drainInput()

	timeout := core.TimeoutFromMillis(d.cfg.ATResponseTimeoutMs)
	n, err := d.cfg.Serial.Write(wire, timeout)
	if n < len(wire) {
		if err == nil {
			err = errors.New("short write")
		}
		d.log.Warn("[HC05] AT write failed", "command", f.String(), "written", n, "len", len(wire), "error", err)
		return protocol.Response{}, fmt.Errorf("%w: wrote %d of %d bytes: %w", bluetooth.ErrResourceUnavailable, n, len(wire), err)
	}
	d.log.Debug("[HC05] AT sent", "command", f.String())

	if d.cfg.SkipResponseCheck {
		return protocol.Response{}, nil
	}
	resp, err := d.readResponse()
	if err != nil {
		d.log.Warn("[HC05] AT command failed", "command", f.String(), "error", err)
		return resp, err
	}
	return resp, nil
}

// drainInput discards bytes left over from communication mode or a previous
// reply so they are not taken for the response
func (d *Driver) drainInput() {
	for i := 0; i < drainLimit; i++ {
		if _, err := d.cfg.Serial.ReadByte(core.Immediate); err != nil {
			if i > 0 {
				d.log.Debug("[HC05] drained stale input", "bytes", i)
			}
			return
		}
	}
}

func (d *Driver) readResponse() (protocol.Response, error) {
	deadline := time.Now().Add(core.MillisToDuration(d.cfg.ATResponseTimeoutMs))
	buf := make([]byte, 64)
	var raw []byte
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		n, err := d.cfg.Serial.Read(buf, core.Timeout(remaining))
		raw = append(raw, buf[:n]...)
		if resp, complete := protocol.ParseResponse(raw); complete {
			if !resp.OK() {
				return resp, fmt.Errorf("%w: module replied %q", bluetooth.ErrProtocolMismatch, resp.Final)
			}
			return resp, nil
		}
		if err != nil && !errors.Is(err, core.ErrTimeout) {
			break
		}
	}
	return protocol.Response{}, fmt.Errorf("%w: no final reply within %dms (got %q)",
		bluetooth.ErrProtocolMismatch, d.cfg.ATResponseTimeoutMs, raw)
}
