// services/hal/sim.go
//go:build !rp2040 && !rp2350

package hal

import (
	"dhtlink/drivers/dht11/dht11sim"
	"dhtlink/services/hal/internal/platform"
)

// SimPins returns host pins with a simulated DHT11 on each given number.
func SimPins(lines map[int]*dht11sim.Line) PinFactory {
	f := &platform.HostPinFactory{}
	for n, l := range lines {
		f.Attach(n, l)
	}
	return f
}
