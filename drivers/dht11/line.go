package dht11

import "time"

// Pin is the single bidirectional data line. The driver owns it for the whole
// exchange: output only while sending the start condition, input afterwards.
type Pin interface {
	ConfigureOutput(initial bool) error
	ConfigureInput() error
	Set(level bool)
	Get() bool
}

// Clock supplies the monotonic microsecond counter and the blocking delay the
// protocol needs. Micros is allowed to wrap; only differences are used.
type Clock interface {
	Micros() uint32
	Sleep(d time.Duration)
}

// SystemClock derives the microsecond counter from the runtime monotonic clock.
// On TinyGo this is the hardware timer.
func SystemClock() Clock { return sysClock{epoch: time.Now()} }

type sysClock struct{ epoch time.Time }

func (c sysClock) Micros() uint32 { return uint32(time.Since(c.epoch) / time.Microsecond) }

func (sysClock) Sleep(d time.Duration) { time.Sleep(d) }
