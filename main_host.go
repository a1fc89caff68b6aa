//go:build !rp2040 && !rp2350

package main

import (
	"dhtlink/drivers/dht11"
	"dhtlink/drivers/dht11/dht11sim"
)

// Off target the loop runs against a simulated sensor holding 45 %RH, 22.3 °C.
func sensorPin() (dht11.Pin, dht11.Config) {
	line := dht11sim.NewLine(0)
	line.HoldFrame(dht11sim.Frame(45, 0, 22, 3))
	return line, dht11.Config{Clock: line}
}
