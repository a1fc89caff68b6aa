// Package dht11 provides a driver for the DHT11 humidity/temperature sensor on
// a single bidirectional data line.
//
// One call to Acquire performs a complete exchange:
//
//	start condition (line low for ~18 ms, then released)
//	handshake       (sensor answers low, high, low)
//	capture         (40 bits, each a ~50 µs low marker and a 26-28 µs or ~70 µs high data pulse)
//	decode, verify checksum, convert
//
// All waits are busy-polls bounded by a per-level timeout. Acquire blocks for
// roughly 25 ms on success and never retries; callers own the retry cadence
// and must not run two acquisitions on the same line concurrently.
package dht11

import (
	"time"

	"tinygo.org/x/drivers"
)

// Default timings.
const (
	DefaultTimeout    = 1000 * time.Microsecond
	DefaultStartPulse = 18 * time.Millisecond
	// MinInterval is the shortest spacing between acquisitions the sensor
	// tolerates. The driver does not enforce it.
	MinInterval = time.Second
)

// Config controls timings. All fields are optional.
type Config struct {
	// Timeout bounds each level wait. Default 1 ms.
	Timeout time.Duration
	// StartPulse is how long the host holds the line low to wake the sensor.
	// Default 18 ms.
	StartPulse time.Duration
	// Clock defaults to SystemClock.
	Clock Clock
	// Debug prints failure reasons and received bytes.
	Debug bool
}

// Reading is the last known good result.
type Reading struct {
	Humidity    float32 // %RH
	Temperature float32 // °C
	Valid       bool    // false after a failed acquisition
}

// Device wraps the data line of one sensor.
type Device struct {
	pin    Pin
	cfg    Config
	budget uint32 // cfg.Timeout in µs

	last  Reading
	frame Frame // frame behind last; replaced only on success
}

// New creates a Device on an unconfigured pin. Acquire configures the pin on
// every call, so nothing is touched here.
func New(pin Pin) Device {
	return Device{pin: pin}
}

// Configure applies optional config; it may be called with no cfg.
func (d *Device) Configure(cfgs ...Config) {
	var c Config
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.StartPulse <= 0 {
		c.StartPulse = DefaultStartPulse
	}
	if c.Clock == nil {
		c.Clock = SystemClock()
	}
	d.cfg = c
	d.budget = budgetMicros(c.Timeout)
}

// budgetMicros rounds t up to whole microseconds and keeps it inside
// [1, Timeout-1] so a wait can never report the Timeout sentinel as elapsed.
func budgetMicros(t time.Duration) uint32 {
	us := t / time.Microsecond
	if t%time.Microsecond != 0 {
		us++
	}
	switch {
	case us < 1:
		return 1
	case us >= time.Duration(Timeout):
		return Timeout - 1
	}
	return uint32(us)
}

// Acquire runs one exchange. On success the Reading is replaced; on failure
// the previous humidity and temperature are kept and Valid reports false.
func (d *Device) Acquire() error {
	if d.cfg.Clock == nil {
		d.Configure()
	}
	f, err := d.exchange()
	if err != nil {
		d.last.Valid = false
		if d.cfg.Debug {
			println("[dht11]", err.Error())
		}
		return err
	}
	d.frame = f
	d.last = f.Reading()
	return nil
}

func (d *Device) exchange() (Frame, error) {
	if err := d.sendStart(); err != nil {
		return Frame{}, err
	}
	if err := d.handshake(); err != nil {
		return Frame{}, err
	}

	var p Pulses
	d.capture(&p)

	f, err := p.Decode()
	if err != nil {
		return Frame{}, err
	}
	if d.cfg.Debug {
		println("[dht11] received", f[0], f[1], f[2], f[3], f[4])
	}
	if err := f.Verify(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// sendStart holds the line low for the start pulse, then releases it.
func (d *Device) sendStart() error {
	if err := d.pin.ConfigureOutput(false); err != nil {
		return err
	}
	d.pin.Set(false)
	d.cfg.Clock.Sleep(d.cfg.StartPulse)
	d.pin.Set(true)
	return d.pin.ConfigureInput()
}

func (d *Device) handshake() error {
	if d.expectLevel(false) == Timeout {
		return &HandshakeTimeoutError{Phase: PhaseResponse}
	}
	if d.expectLevel(true) == Timeout {
		return &HandshakeTimeoutError{Phase: PhasePullUp}
	}
	if d.expectLevel(false) == Timeout {
		return &HandshakeTimeoutError{Phase: PhaseStreamStart}
	}
	return nil
}

// capture records every pulse width; timeouts are recorded, not acted on, so
// the buffer is always fully populated.
func (d *Device) capture(p *Pulses) {
	for i := 0; i < PulseCount; i += 2 {
		p[i] = d.expectLevel(true)
		p[i+1] = d.expectLevel(false)
	}
}

// expectLevel waits for the line to read level and returns the elapsed
// microseconds, or Timeout once the budget is spent. Unsigned subtraction
// keeps the comparison correct across counter wraparound.
func (d *Device) expectLevel(level bool) uint32 {
	clk := d.cfg.Clock
	start := clk.Micros()
	for d.pin.Get() != level {
		if clk.Micros()-start >= d.budget {
			return Timeout
		}
	}
	return clk.Micros() - start
}

// Update implements drivers.Sensor. Any request for temperature or humidity
// performs one acquisition.
func (d *Device) Update(which drivers.Measurement) error {
	if which&(drivers.Temperature|drivers.Humidity) == 0 {
		return nil
	}
	return d.Acquire()
}

// Reading returns the last known good values and whether the latest
// acquisition succeeded.
func (d *Device) Reading() Reading { return d.last }

// Valid reports whether the latest acquisition succeeded.
func (d *Device) Valid() bool { return d.last.Valid }

// Humidity returns the last good relative humidity in percent.
func (d *Device) Humidity() float32 { return d.last.Humidity }

// Temperature returns the last good temperature in °C.
func (d *Device) Temperature() float32 { return d.last.Temperature }

// DeciRelHumidity returns the last good humidity in tenths of %RH.
func (d *Device) DeciRelHumidity() int32 { return d.frame.DeciRelHumidity() }

// DeciCelsius returns the last good temperature in tenths of °C.
func (d *Device) DeciCelsius() int32 { return d.frame.DeciCelsius() }
