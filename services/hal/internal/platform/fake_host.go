// services/hal/internal/platform/fake_host.go
//go:build !rp2040 && !rp2350

package platform

import (
	"sync"

	"dhtlink/drivers/dht11/dht11sim"
	"dhtlink/services/hal/internal/halcore"
)

// FakePin is an inert GPIO for host builds. It reads back what was last
// driven and idles high as an input, like a line with a pull-up.
type FakePin struct {
	mu      sync.RWMutex
	number  int
	level   bool
	modeOut bool
	pull    halcore.Pull
}

func (p *FakePin) ConfigureInput(pull halcore.Pull) error {
	p.mu.Lock()
	p.modeOut = false
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *FakePin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.modeOut = true
	p.level = initial
	p.mu.Unlock()
	return nil
}

func (p *FakePin) Set(level bool) {
	p.mu.Lock()
	if p.modeOut {
		p.level = level
	}
	p.mu.Unlock()
}

func (p *FakePin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.modeOut {
		return p.level
	}
	return p.pull != halcore.PullDown
}

func (p *FakePin) Number() int { return p.number }

// SimPin puts a simulated DHT11 behind a pin number. The embedded line is
// also the clock the driver times pulses with.
type SimPin struct {
	*dht11sim.Line
	number int
}

func (p *SimPin) ConfigureInput(halcore.Pull) error { return p.Line.ConfigureInput() }
func (p *SimPin) Number() int                       { return p.number }

// HostPinFactory returns stable pins per number: a SimPin where a line has
// been attached, otherwise a FakePin.
type HostPinFactory struct {
	mu   sync.Mutex
	fake map[int]*FakePin
	sim  map[int]*SimPin
}

// Attach places a simulated sensor on pin n.
func (f *HostPinFactory) Attach(n int, line *dht11sim.Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sim == nil {
		f.sim = make(map[int]*SimPin)
	}
	f.sim[n] = &SimPin{Line: line, number: n}
}

func (f *HostPinFactory) ByNumber(n int) (halcore.GPIOPin, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < 0 {
		return nil, false
	}
	if p, ok := f.sim[n]; ok {
		return p, true
	}
	if f.fake == nil {
		f.fake = make(map[int]*FakePin)
	}
	p, ok := f.fake[n]
	if !ok {
		p = &FakePin{number: n}
		f.fake[n] = p
	}
	return p, true
}
