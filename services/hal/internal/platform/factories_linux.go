// services/hal/internal/platform/factories_linux.go
//go:build linux && !(rp2040 || rp2350)

package platform

import (
	"sync"

	"dhtlink/services/hal/internal/halcore"
	"dhtlink/x/conv"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultPinFactory maps logical numbers to the SoC's "GPIO<n>" lines through
// periph. Host drivers are loaded on first use; if that fails every lookup
// misses.
func DefaultPinFactory() halcore.PinFactory { return &periphPinFactory{} }

type periphPinFactory struct {
	once sync.Once
	err  error
}

func (f *periphPinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	f.once.Do(func() {
		if _, err := host.Init(); err != nil {
			f.err = err
			println("[hal] periph host init failed:", err.Error())
		}
	})
	if f.err != nil || n < 0 {
		return nil, false
	}
	var buf [12]byte
	p := gpioreg.ByName("GPIO" + string(conv.Itoa(buf[:], int64(n))))
	if p == nil {
		return nil, false
	}
	return &periphPin{p: p, n: n}, true
}

type periphPin struct {
	p gpio.PinIO
	n int
}

func (r *periphPin) ConfigureInput(pull halcore.Pull) error {
	return r.p.In(toPeriphPull(pull), gpio.NoEdge)
}

func (r *periphPin) ConfigureOutput(initial bool) error {
	return r.p.Out(gpio.Level(initial))
}

// Set cannot return an error, so a failed drive is only logged.
func (r *periphPin) Set(level bool) {
	if err := r.p.Out(gpio.Level(level)); err != nil {
		logSetFailure(r.n, err)
	}
}

func (r *periphPin) Get() bool   { return r.p.Read() == gpio.High }
func (r *periphPin) Number() int { return r.n }

// logSetFailure is swapped in tests.
var logSetFailure = func(n int, err error) {
	println("[hal] gpio", n, "set failed:", err.Error())
}

func toPeriphPull(p halcore.Pull) gpio.Pull {
	switch p {
	case halcore.PullUp:
		return gpio.PullUp
	case halcore.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}
