package main

import (
	"testing"

	"dhtlink/drivers/dht11"
)

func TestHostSensor(t *testing.T) {
	pin, cfg := sensorPin()
	dev := dht11.New(pin)
	dev.Configure(cfg)
	for i := 0; i < 2; i++ {
		if err := dev.Acquire(); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if dev.DeciRelHumidity() != 450 || dev.DeciCelsius() != 223 {
		t.Fatalf("reading = %d/%d", dev.DeciRelHumidity(), dev.DeciCelsius())
	}
}
