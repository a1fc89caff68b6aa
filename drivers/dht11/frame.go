package dht11

import "math"

const (
	// FrameSize is the number of bytes in one transfer.
	FrameSize = 5
	// PulseCount is the number of widths captured per transfer: a marker and a
	// data pulse for each of the 40 bits.
	PulseCount = 2 * 8 * FrameSize
	// Timeout is the width recorded for a wait that exceeded its budget.
	Timeout uint32 = math.MaxUint32
)

// Byte positions within a Frame.
const (
	humidityIntegral = iota
	humidityDecimal
	temperatureIntegral
	temperatureDecimal // bit 7 is the sign
	checksum
)

const signBit = 0x80

// Pulses holds the raw widths of one capture in microseconds, marker first.
type Pulses [PulseCount]uint32

// Frame is one decoded transfer.
type Frame [FrameSize]byte

// Decode rebuilds the frame from captured widths. A bit is 1 when its data
// pulse lasted longer than the marker pulse preceding it. The first pulse
// carrying the Timeout sentinel aborts decoding.
func (p *Pulses) Decode() (Frame, error) {
	var f Frame
	for bit := 0; bit < 8*FrameSize; bit++ {
		marker, data := p[2*bit], p[2*bit+1]
		if marker == Timeout {
			return Frame{}, &BitTimeoutError{Bit: bit, Pulse: PulseMarker}
		}
		if data == Timeout {
			return Frame{}, &BitTimeoutError{Bit: bit, Pulse: PulseData}
		}
		f[bit/8] <<= 1
		if data > marker {
			f[bit/8] |= 1
		}
	}
	return f, nil
}

// Sum is the checksum the sensor should have sent: the sum of the first four
// bytes truncated to 8 bits.
func (f Frame) Sum() byte {
	return f[humidityIntegral] + f[humidityDecimal] + f[temperatureIntegral] + f[temperatureDecimal]
}

// Verify compares the received checksum byte with Sum.
func (f Frame) Verify() error {
	if want := f.Sum(); want != f[checksum] {
		return &ChecksumError{Want: want, Got: f[checksum]}
	}
	return nil
}

// RelHumidity returns relative humidity in percent.
func (f Frame) RelHumidity() float32 {
	return float32(f[humidityIntegral]) + float32(f[humidityDecimal])*0.1
}

// Celsius returns the temperature in °C. The sign is a flag bit on the
// decimal byte, not a two's complement encoding.
func (f Frame) Celsius() float32 {
	t := float32(f[temperatureIntegral]) + float32(f[temperatureDecimal]&^signBit)*0.1
	if f[temperatureDecimal]&signBit != 0 {
		t = -t
	}
	return t
}

// Fixed-point helpers, tenths of a unit.

func (f Frame) DeciRelHumidity() int32 {
	return int32(f[humidityIntegral])*10 + int32(f[humidityDecimal])
}

func (f Frame) DeciCelsius() int32 {
	t := int32(f[temperatureIntegral])*10 + int32(f[temperatureDecimal]&^signBit)
	if f[temperatureDecimal]&signBit != 0 {
		t = -t
	}
	return t
}

// Reading returns the converted values of a verified frame.
func (f Frame) Reading() Reading {
	return Reading{Humidity: f.RelHumidity(), Temperature: f.Celsius(), Valid: true}
}
