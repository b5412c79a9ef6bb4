package hc05

import (
	"log/slog"

	"hc05link/core"
)

// pinTarget selects which firmware mode the module boots into after reset
type pinTarget int

const (
	targetCommunication pinTarget = iota
	targetATCommand
)

func (t pinTarget) String() string {
	if t == targetATCommand {
		return "at-command"
	}
	return "communication"
}

// sequencer drives the KEY and RESET lines. The module samples KEY while it
// comes out of reset: high boots the AT command interpreter, low the
// transparent serial bridge.
type sequencer struct {
	gpio  core.GPIODriver
	sleep core.Sleeper
	key   core.GPIOPin
	reset core.GPIOPin
	log   *slog.Logger
}

func newSequencer(gpio core.GPIODriver, sleep core.Sleeper, key, reset core.GPIOPin, log *slog.Logger) *sequencer {
	return &sequencer{gpio: gpio, sleep: sleep, key: key, reset: reset, log: log}
}

// configure puts KEY and RESET into output mode, RESET released
func (s *sequencer) configure() error {
	if err := s.gpio.ConfigureOutput(s.key); err != nil {
		return err
	}
	if err := s.gpio.ConfigureOutput(s.reset); err != nil {
		return err
	}
	s.set(s.reset, true)
	return nil
}

// assertMode sets KEY for the target and pulses RESET, waiting settleMs after
// each edge. The serial channel must be stopped while this runs.
func (s *sequencer) assertMode(target pinTarget, settleMs uint32) {
	s.log.Debug("[HC05] pin sequence", "target", target, "settle_ms", settleMs)

	s.set(s.key, target == targetATCommand)
	s.sleep.SleepMillis(settleMs) // KEY settles before reset is observed

	s.set(s.reset, false)
	s.sleep.SleepMillis(settleMs)

	s.set(s.reset, true)
	s.sleep.SleepMillis(settleMs) // module firmware boots
}

// set drives a pin; failures are logged only, the edge cannot be observed back
func (s *sequencer) set(pin core.GPIOPin, value bool) {
	if err := s.gpio.SetPin(pin, value); err != nil {
		s.log.Warn("[HC05] set pin failed", "pin", pin, "value", value, "error", err)
	}
}
