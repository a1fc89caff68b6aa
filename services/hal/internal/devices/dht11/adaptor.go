// services/hal/internal/devices/dht11/adaptor.go
package dht11dev

import (
	"context"
	"errors"
	"sync"
	"time"

	"dhtlink/drivers/dht11"
	"dhtlink/errcode"
	"dhtlink/services/hal/internal/consts"
	"dhtlink/services/hal/internal/halcore"
	"dhtlink/types"
)

// minGap is the spacing enforced between acquisitions on one sensor.
var minGap = dht11.MinInterval

// linePin adapts a HAL GPIO pin to the driver's line contract. The DHT11
// data line idles high through a pull-up.
type linePin struct{ p halcore.GPIOPin }

func (l linePin) ConfigureOutput(initial bool) error { return l.p.ConfigureOutput(initial) }
func (l linePin) ConfigureInput() error              { return l.p.ConfigureInput(halcore.PullUp) }
func (l linePin) Set(level bool)                     { l.p.Set(level) }
func (l linePin) Get() bool                          { return l.p.Get() }

type adaptor struct {
	id  string
	pin int

	mu    sync.Mutex // guards stats; Control runs on the service goroutine
	dev   dht11.Device
	last  time.Time // start of the previous acquisition
	stats types.SensorStats
}

// newAdaptor wires a driver to pin. Pins that carry their own clock (the
// simulated line) drive the driver's timing.
func newAdaptor(id string, pin halcore.GPIOPin, cfg dht11.Config) *adaptor {
	if clk, ok := pin.(dht11.Clock); ok && cfg.Clock == nil {
		cfg.Clock = clk
	}
	a := &adaptor{id: id, pin: pin.Number(), dev: dht11.New(linePin{pin})}
	a.dev.Configure(cfg)
	return a
}

func (a *adaptor) ID() string { return a.id }

func (a *adaptor) Capabilities() []halcore.CapInfo {
	return []halcore.CapInfo{
		{Kind: consts.KindTemperature, Info: types.Info{
			SchemaVersion: 1,
			Driver:        consts.DevDHT11,
			Detail:        types.TemperatureInfo{Sensor: consts.DevDHT11, Pin: a.pin},
		}},
		{Kind: consts.KindHumidity, Info: types.Info{
			SchemaVersion: 1,
			Driver:        consts.DevDHT11,
			Detail:        types.HumidityInfo{Sensor: consts.DevDHT11, Pin: a.pin},
		}},
	}
}

// Trigger is a no-op: the whole exchange happens in Collect.
func (a *adaptor) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *adaptor) Collect(ctx context.Context) (halcore.Sample, error) {
	now := time.Now()
	if !a.last.IsZero() && now.Sub(a.last) < minGap {
		return nil, halcore.ErrNotReady
	}
	a.last = now

	err := a.dev.Acquire()
	a.record(err)
	if err != nil {
		return nil, errcode.Wrap(consts.DevDHT11, err)
	}

	ts := now.UnixMilli()
	return halcore.Sample{
		{Kind: consts.KindTemperature, Payload: types.TemperatureValue{DeciC: int16(a.dev.DeciCelsius()), TS: ts}, TsMs: ts},
		{Kind: consts.KindHumidity, Payload: types.HumidityValue{RHx100: uint16(a.dev.DeciRelHumidity() * 10), TS: ts}, TsMs: ts},
	}, nil
}

func (a *adaptor) record(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Reads++
	if err == nil {
		a.stats.OK++
		return
	}
	switch {
	case errors.Is(err, dht11.ErrHandshakeTimeout):
		a.stats.HandshakeTimeout++
	case errors.Is(err, dht11.ErrBitTimeout):
		a.stats.BitTimeout++
	case errors.Is(err, dht11.ErrChecksum):
		a.stats.Checksum++
	}
	a.stats.LastError = err.Error()
}

func (a *adaptor) Control(kind, method string, payload any) (any, error) {
	switch method {
	case consts.CtrlStats:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.stats, nil
	default:
		return nil, halcore.ErrUnsupported
	}
}
