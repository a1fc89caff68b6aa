// services/hal/internal/devices/dht11/builder.go
package dht11dev

import (
	"time"

	"dhtlink/drivers/dht11"
	"dhtlink/services/hal/internal/consts"
	"dhtlink/services/hal/internal/halerr"
	"dhtlink/services/hal/internal/registry"
	"dhtlink/services/hal/internal/util"
	"dhtlink/types"
	"dhtlink/x/conv"
	"dhtlink/x/timex"
)

// DefaultInterval is the sampling period when params leave it unset.
const DefaultInterval = 2 * time.Second

func init() {
	registry.RegisterBuilder(consts.DevDHT11, builder{})
}

type builder struct{}

// Params: { "pin": 2, "interval_ms": 2000, "timeout_us": 1000, "start_pulse_ms": 18 }
func (builder) Build(in registry.BuildInput) (registry.BuildOutput, error) {
	var p types.DHT11Params
	if err := util.DecodeJSON(in.ParamsJSON, &p); err != nil {
		return registry.BuildOutput{}, halerr.ErrInvalidParams
	}
	if in.Pins == nil {
		return registry.BuildOutput{}, halerr.ErrUnknownPin
	}
	pin, ok := in.Pins.ByNumber(p.Pin)
	if !ok {
		return registry.BuildOutput{}, halerr.ErrUnknownPin
	}

	cfg := dht11.Config{
		Timeout:    time.Duration(p.TimeoutUs) * time.Microsecond,
		StartPulse: time.Duration(p.StartPulseMs) * time.Millisecond,
		Debug:      p.Debug,
	}
	return registry.BuildOutput{
		Adaptor:     newAdaptor(in.DeviceID, pin, cfg),
		LineID:      lineID(p.Pin),
		Pin:         p.Pin,
		SampleEvery: timex.Ms(p.IntervalMs, DefaultInterval),
	}, nil
}

func lineID(pin int) string {
	var buf [12]byte
	return "gpio" + string(conv.Itoa(buf[:], int64(pin)))
}
