//go:build rp2040 || rp2350

package main

import (
	"machine"
	"strconv"
	"time"

	"hc05link/bluetooth"
	"hc05link/core"
	"hc05link/hc05"
)

// Board wiring
const (
	pinTX     core.GPIOPin = 0 // UART0 TX -> module RXD
	pinRX     core.GPIOPin = 1 // UART0 RX <- module TXD
	pinKey    core.GPIOPin = 2
	pinReset  core.GPIOPin = 3
	pinButton core.GPIOPin = 15
)

func main() {
	// USB CDC carries the log
	machine.Serial.Configure(machine.UARTConfig{})
	core.SetDebugWriter(func(s string) {
		machine.Serial.Write([]byte(s))
		machine.Serial.Write([]byte("\r\n"))
	})
	log := core.Logger()

	gpio := NewRPGPIODriver()
	gpio.ConfigureOutput(core.GPIOPin(machine.LED))
	gpio.ConfigureInputPullUp(pinButton)

	dev := hc05.New()
	cfg := &bluetooth.Config{
		Name:     "hc05link",
		PinCode:  "1234",
		BaudRate: bluetooth.Baud38400,
		Pins: bluetooth.Pins{
			TX:    pinTX,
			RX:    pinRX,
			Key:   pinKey,
			Reset: pinReset,
			RTS:   core.NoPin,
			CTS:   core.NoPin,
		},
		Serial:      NewUARTChannel(machine.UART0),
		GPIO:        gpio,
		ApplyOnOpen: true,
	}
	if err := dev.Open(cfg); err != nil {
		log.Error("[BT] open failed", "error", err)
	}

	var (
		buf       = make([]byte, 32)
		led       bool
		lastBlink time.Time
		pressed   bool
		renames   int
	)
	for {
		// Echo whatever the paired device sends
		if dev.CanReceive() {
			if n, err := dev.ReadBuffer(buf); err == nil {
				if err := dev.SendBuffer(buf[:n]); err != nil {
					log.Warn("[BT] echo dropped", "bytes", n, "error", err)
				}
			}
		}

		// Button is active low; rename once per press
		down := !gpio.ReadPin(pinButton)
		if down && !pressed {
			renames++
			name := "hc05link-" + strconv.Itoa(renames)
			if err := dev.SetName(name); err != nil {
				log.Warn("[BT] rename failed", "name", name, "error", err)
			} else {
				log.Info("[BT] renamed", "name", name)
			}
		}
		pressed = down

		if time.Since(lastBlink) >= 500*time.Millisecond {
			led = !led
			gpio.SetPin(core.GPIOPin(machine.LED), led)
			lastBlink = time.Now()
		}

		time.Sleep(10 * time.Millisecond)
	}
}
