package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin int32

// NoPin marks an optional pin as unused
const NoPin GPIOPin = -1

// Valid reports whether the pin refers to a real line
func (p GPIOPin) Valid() bool {
	return p >= 0
}

// GPIODriver is the abstract digital pin interface the radio drivers use.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a push-pull digital output
	ConfigureOutput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error
}

// NopGPIO is a GPIODriver for setups where KEY and RESET are wired by hand.
// Every call succeeds and the level is only logged.
type NopGPIO struct{}

func (NopGPIO) ConfigureOutput(pin GPIOPin) error {
	Logger().Debug("[GPIO] configure output ignored", "pin", pin)
	return nil
}

func (NopGPIO) SetPin(pin GPIOPin, value bool) error {
	Logger().Debug("[GPIO] set pin ignored", "pin", pin, "value", value)
	return nil
}
