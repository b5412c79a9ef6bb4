package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command prefixes understood by the HC-05 firmware
const (
	PrefixTest      = "AT"
	PrefixSetName   = "AT+NAME="
	PrefixQueryName = "AT+NAME?"
	PrefixSetPin    = "AT+PIN="
	PrefixReset     = "AT+ORGL"
	PrefixVersion   = "AT+VERSION?"
	PrefixUART      = "AT+UART="
	PrefixRole      = "AT+ROLE="
)

var (
	ErrEmptyPrefix         = errors.New("at: empty command prefix")
	ErrEmptyPayload        = errors.New("at: empty payload")
	ErrPayloadTooLong      = errors.New("at: payload too long")
	ErrPinLength           = errors.New("at: wrong pin code length")
	ErrTerminatorInPayload = errors.New("at: payload contains the frame terminator")
	ErrFrameTooLong        = errors.New("at: frame exceeds maximum command size")
	ErrBadParameter        = errors.New("at: parameter out of range")
)

// Frame is a single AT command: prefix, optional payload and the CR LF
// terminator added on encoding. Frames are built and consumed within one
// configuration call and never stored.
type Frame struct {
	Prefix  string
	Payload []byte
}

// NewFrame creates a frame from a prefix and payload
func NewFrame(prefix string, payload []byte) Frame {
	return Frame{Prefix: prefix, Payload: payload}
}

// EncodedLen returns the wire length of the frame
func (f Frame) EncodedLen(leading bool) int {
	n := len(f.Prefix) + len(f.Payload) + len(Terminator)
	if leading {
		n += len(Terminator)
	}
	return n
}

// Encode validates the frame and returns its wire bytes. When leading is set a
// terminator is sent first to flush any partial line on the module side.
// maxLen <= 0 disables the size check.
func (f Frame) Encode(maxLen int, leading bool) ([]byte, error) {
	if f.Prefix == "" {
		return nil, ErrEmptyPrefix
	}
	// The protocol has no escaping: a CR LF inside the frame would end it early.
	if strings.Contains(f.Prefix, Terminator) || bytes.Contains(f.Payload, []byte(Terminator)) {
		return nil, ErrTerminatorInPayload
	}
	n := f.EncodedLen(leading)
	if maxLen > 0 && n > maxLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLong, n, maxLen)
	}

	out := make([]byte, 0, n)
	if leading {
		out = append(out, Terminator...)
	}
	out = append(out, f.Prefix...)
	out = append(out, f.Payload...)
	out = append(out, Terminator...)
	return out, nil
}

func (f Frame) String() string {
	return f.Prefix + string(f.Payload)
}

// SetNameFrame builds AT+NAME=<name>; the name must be 1..maxLen bytes
func SetNameFrame(name string, maxLen int) (Frame, error) {
	if name == "" {
		return Frame{}, ErrEmptyPayload
	}
	if maxLen > 0 && len(name) > maxLen {
		return Frame{}, fmt.Errorf("%w: name is %d bytes, limit %d", ErrPayloadTooLong, len(name), maxLen)
	}
	return NewFrame(PrefixSetName, []byte(name)), nil
}

// SetPinFrame builds AT+PIN=<pin>; the pin must be exactly pinLen bytes
func SetPinFrame(pin string, pinLen int) (Frame, error) {
	if pin == "" {
		return Frame{}, ErrEmptyPayload
	}
	if len(pin) != pinLen {
		return Frame{}, fmt.Errorf("%w: got %d, want %d", ErrPinLength, len(pin), pinLen)
	}
	return NewFrame(PrefixSetPin, []byte(pin)), nil
}

// ResetDefaultsFrame builds AT+ORGL (restore factory settings)
func ResetDefaultsFrame() Frame {
	return NewFrame(PrefixReset, nil)
}

// TestFrame builds the bare AT probe
func TestFrame() Frame {
	return NewFrame(PrefixTest, nil)
}

// QueryNameFrame builds AT+NAME?
func QueryNameFrame() Frame {
	return NewFrame(PrefixQueryName, nil)
}

// VersionFrame builds AT+VERSION?
func VersionFrame() Frame {
	return NewFrame(PrefixVersion, nil)
}

// SetUARTFrame builds AT+UART=<baud>,<stop>,<parity>.
// stopBits is 0 (one) or 1 (two); parity is 0 none, 1 odd, 2 even.
func SetUARTFrame(baud uint32, stopBits, parity int) (Frame, error) {
	if baud == 0 {
		return Frame{}, fmt.Errorf("%w: baud 0", ErrBadParameter)
	}
	if stopBits < 0 || stopBits > 1 {
		return Frame{}, fmt.Errorf("%w: stop bits %d", ErrBadParameter, stopBits)
	}
	if parity < 0 || parity > 2 {
		return Frame{}, fmt.Errorf("%w: parity %d", ErrBadParameter, parity)
	}
	payload := strconv.FormatUint(uint64(baud), 10) + "," + strconv.Itoa(stopBits) + "," + strconv.Itoa(parity)
	return NewFrame(PrefixUART, []byte(payload)), nil
}

// SetRoleFrame builds AT+ROLE=<role>; 0 slave, 1 master, 2 slave-loop
func SetRoleFrame(role int) (Frame, error) {
	if role < 0 || role > 2 {
		return Frame{}, fmt.Errorf("%w: role %d", ErrBadParameter, role)
	}
	return NewFrame(PrefixRole, []byte(strconv.Itoa(role))), nil
}

// Response is a parsed module reply: zero or more data lines followed by a
// final result line (OK, ERROR:(n) or FAIL).
type Response struct {
	Lines []string
	Final string
}

// OK reports whether the module accepted the command
func (r Response) OK() bool {
	return r.Final == ResponseOK
}

// Value returns the text after a "+KEY:" data line, e.g. Value("+NAME")
func (r Response) Value(key string) (string, bool) {
	for _, line := range r.Lines {
		if rest, ok := strings.CutPrefix(line, key+":"); ok {
			return rest, true
		}
	}
	return "", false
}

// IsFinal reports whether a response line terminates a command
func IsFinal(line string) bool {
	return line == ResponseOK ||
		strings.HasPrefix(line, ResponseError) ||
		strings.HasPrefix(line, ResponseFail)
}

// Splitter is a bufio.SplitFunc yielding CR LF (or bare LF) terminated lines
// without the terminator. Empty lines are skipped. An unterminated tail is
// only returned at EOF.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) && (data[start] == '\r' || data[start] == '\n') {
		start++
	}
	if start == len(data) {
		return start, nil, nil
	}
	if i := bytes.IndexByte(data[start:], '\n'); i >= 0 {
		return start + i + 1, bytes.TrimRight(data[start:start+i], "\r"), nil
	}
	if atEOF {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

// ParseResponse scans complete lines from raw module output. complete is true
// once a final result line has been seen; bytes after it are ignored.
func ParseResponse(raw []byte) (resp Response, complete bool) {
	end := bytes.LastIndexByte(raw, '\n')
	if end < 0 {
		return Response{}, false
	}
	scanner := bufio.NewScanner(bytes.NewReader(raw[:end+1]))
	scanner.Split(Splitter)
	for scanner.Scan() {
		line := scanner.Text()
		if IsFinal(line) {
			resp.Final = line
			return resp, true
		}
		resp.Lines = append(resp.Lines, line)
	}
	return resp, false
}
