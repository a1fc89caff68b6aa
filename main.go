package main

import (
	"time"

	"dhtlink/drivers/dht11"
	"dhtlink/services/console"
)

// Polls one sensor every second and prints the reading on the console.
func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot")

	pin, cfg := sensorPin()
	dev := dht11.New(pin)
	dev.Configure(cfg)

	start := time.Now()
	tick := time.NewTicker(dht11.MinInterval)
	defer tick.Stop()

	var buf []byte
	for range tick.C {
		if err := dev.Acquire(); err != nil {
			println("[main] read failed:", err.Error())
			continue
		}
		buf = console.AppendReading(buf[:0], time.Since(start), dev.DeciRelHumidity(), dev.DeciCelsius())
		println(string(buf))
	}
}
