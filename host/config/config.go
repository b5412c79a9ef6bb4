// Package config loads the YAML configuration of the host console.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"hc05link/bluetooth"
	"hc05link/core"
	"hc05link/host/serial"
)

// Serial backends
const (
	BackendModem  = "modem"
	BackendNative = "native"
)

// Control lines of the modem backend
const (
	LineDTR = "dtr"
	LineRTS = "rts"
)

// Config is the host console configuration
type Config struct {
	Variant  string       `yaml:"variant"`
	LogLevel string       `yaml:"log_level"`
	Serial   SerialConfig `yaml:"serial"`
	Module   ModuleConfig `yaml:"module"`
	Timing   TimingConfig `yaml:"timing"`
	Queues   QueueConfig  `yaml:"queues"`
}

// SerialConfig selects the device and how KEY/RESET are driven
type SerialConfig struct {
	Backend       string `yaml:"backend"`
	Device        string `yaml:"device"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
	InvertLines   bool   `yaml:"invert_lines"`
	KeyLine       string `yaml:"key_line"`
	ResetLine     string `yaml:"reset_line"`
}

// ModuleConfig holds the settings written to or used with the module
type ModuleConfig struct {
	Name              string `yaml:"name"`
	Pin               string `yaml:"pin"`
	Baud              uint32 `yaml:"baud"`
	ATBaud            uint32 `yaml:"at_baud"`
	ApplyOnOpen       bool   `yaml:"apply_on_open"`
	LeadingTerminator bool   `yaml:"leading_terminator"`
}

// TimingConfig holds the driver delays in milliseconds
type TimingConfig struct {
	SettleMs    uint32 `yaml:"settle_ms"`
	PollMs      uint32 `yaml:"poll_ms"`
	ATTimeoutMs uint32 `yaml:"at_timeout_ms"`
}

// QueueConfig holds the driver queue sizes in bytes
type QueueConfig struct {
	Send    int `yaml:"send"`
	Receive int `yaml:"receive"`
}

// Load reads and validates a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default(device string) *Config {
	cfg := &Config{Serial: SerialConfig{Device: device}}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	if cfg.Variant == "" {
		cfg.Variant = "hc05"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Serial.Backend == "" {
		cfg.Serial.Backend = BackendModem
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		cfg.Serial.ReadTimeoutMs = 20
	}
	if cfg.Serial.KeyLine == "" {
		cfg.Serial.KeyLine = LineDTR
	}
	if cfg.Serial.ResetLine == "" {
		cfg.Serial.ResetLine = LineRTS
	}
	cfg.Serial.KeyLine = strings.ToLower(cfg.Serial.KeyLine)
	cfg.Serial.ResetLine = strings.ToLower(cfg.Serial.ResetLine)

	// Driver defaults cover the rest.
	if cfg.Module.Baud == 0 {
		cfg.Module.Baud = uint32(bluetooth.DefaultBaudRate)
	}
	if cfg.Module.ATBaud == 0 {
		cfg.Module.ATBaud = uint32(bluetooth.DefaultBaudRate)
	}
}

// Validate checks the backend, device and control line assignment
func (c *Config) Validate() error {
	var errs []error
	switch c.Serial.Backend {
	case BackendModem, BackendNative:
	default:
		errs = append(errs, fmt.Errorf("serial.backend %q: want %q or %q", c.Serial.Backend, BackendModem, BackendNative))
	}
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device is required"))
	}
	if c.Serial.Backend == BackendModem {
		if !validLine(c.Serial.KeyLine) || !validLine(c.Serial.ResetLine) {
			errs = append(errs, fmt.Errorf("serial.key_line and serial.reset_line must be %q or %q", LineDTR, LineRTS))
		} else if c.Serial.KeyLine == c.Serial.ResetLine {
			errs = append(errs, errors.New("serial.key_line and serial.reset_line must differ"))
		}
	}
	if c.Module.Pin != "" && len(c.Module.Pin) != 4 {
		errs = append(errs, fmt.Errorf("module.pin must have 4 digits, got %d", len(c.Module.Pin)))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validLine(s string) bool {
	return s == LineDTR || s == LineRTS
}

func linePin(s string) core.GPIOPin {
	if s == LineRTS {
		return serial.PinRTS
	}
	return serial.PinDTR
}

// SerialPort returns the host/serial configuration
func (c *Config) SerialPort() *serial.Config {
	sc := serial.DefaultConfig(c.Serial.Device)
	sc.ReadTimeout = c.Serial.ReadTimeoutMs
	sc.InvertLines = c.Serial.InvertLines
	return sc
}

// Bluetooth returns the driver configuration without Serial and GPIO, which
// the caller binds to the opened backend
func (c *Config) Bluetooth() bluetooth.Config {
	return bluetooth.Config{
		Name:       c.Module.Name,
		PinCode:    c.Module.Pin,
		BaudRate:   bluetooth.BaudRate(c.Module.Baud),
		ATBaudRate: bluetooth.BaudRate(c.Module.ATBaud),
		Pins: bluetooth.Pins{
			TX:    core.NoPin,
			RX:    core.NoPin,
			Key:   linePin(c.Serial.KeyLine),
			Reset: linePin(c.Serial.ResetLine),
			RTS:   core.NoPin,
			CTS:   core.NoPin,
		},
		SettleTimeMs:        c.Timing.SettleMs,
		CommSleepTimeMs:     c.Timing.PollMs,
		ATResponseTimeoutMs: c.Timing.ATTimeoutMs,
		SendQueueSize:       c.Queues.Send,
		ReceiveQueueSize:    c.Queues.Receive,
		LeadingTerminator:   c.Module.LeadingTerminator,
		ApplyOnOpen:         c.Module.ApplyOnOpen,
	}
}

// Level returns the configured log level
func (c *Config) Level() slog.Level {
	return ParseLevel(c.LogLevel)
}

// ParseLevel maps debug, info, warn and error to slog levels; anything else
// is info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
