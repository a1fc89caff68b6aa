//go:build rp2040 || rp2350

package main

import (
	"machine"

	"dhtlink/drivers/dht11"
)

const dataPin = machine.GP2

type mcuPin struct{ p machine.Pin }

func (m mcuPin) ConfigureOutput(initial bool) error {
	m.p.Set(initial)
	m.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	m.p.Set(initial)
	return nil
}

func (m mcuPin) ConfigureInput() error {
	m.p.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return nil
}

func (m mcuPin) Set(level bool) { m.p.Set(level) }
func (m mcuPin) Get() bool      { return m.p.Get() }

func sensorPin() (dht11.Pin, dht11.Config) {
	return mcuPin{p: dataPin}, dht11.Config{}
}
