// Package dht11sim simulates a DHT11 on a virtual data line. Line implements
// both dht11.Pin and dht11.Clock, so a Device wired to it runs the real
// protocol code against a scripted waveform with no hardware and no sleeping.
//
// Virtual time only moves when the driver reads the clock (Step µs per read)
// or sleeps.
package dht11sim

import (
	"sync"
	"time"
)

// Timing describes the sensor side of one exchange in microseconds.
type Timing struct {
	ResponseDelay uint32 // line stays pulled up after release
	ResponseLow   uint32
	ResponseHigh  uint32
	BitLow        uint32 // marker preceding every bit
	Zero          uint32 // high time of a 0 bit
	One           uint32 // high time of a 1 bit
	Tail          uint32 // final low before the sensor releases the line
}

// DHT11 is nominal datasheet timing.
var DHT11 = Timing{
	ResponseDelay: 30,
	ResponseLow:   80,
	ResponseHigh:  80,
	BitLow:        50,
	Zero:          27,
	One:           70,
	Tail:          50,
}

// Scale multiplies every duration by k.
func (t Timing) Scale(k uint32) Timing {
	return Timing{
		ResponseDelay: t.ResponseDelay * k,
		ResponseLow:   t.ResponseLow * k,
		ResponseHigh:  t.ResponseHigh * k,
		BitLow:        t.BitLow * k,
		Zero:          t.Zero * k,
		One:           t.One * k,
		Tail:          t.Tail * k,
	}
}

// Segment is a level held for a duration.
type Segment struct {
	Level  bool
	Micros uint32
}

// Waveform returns the levels the sensor drives after the host releases the
// line, for the five given bytes. After the last segment the line idles high.
func Waveform(t Timing, frame [5]byte) []Segment {
	w := make([]Segment, 0, 4+2*40)
	w = append(w,
		Segment{true, t.ResponseDelay},
		Segment{false, t.ResponseLow},
		Segment{true, t.ResponseHigh},
	)
	for _, b := range frame {
		for i := 7; i >= 0; i-- {
			high := t.Zero
			if b&(1<<i) != 0 {
				high = t.One
			}
			w = append(w, Segment{false, t.BitLow}, Segment{true, high})
		}
	}
	return append(w, Segment{false, t.Tail})
}

// Frame builds a frame with a correct checksum.
func Frame(hInt, hDec, tInt, tDec byte) [5]byte {
	return [5]byte{hInt, hDec, tInt, tDec, hInt + hDec + tInt + tDec}
}

// Line is a virtual data line with a pull-up and a scripted sensor.
type Line struct {
	mu sync.Mutex

	// Step is the virtual time added on every clock read. Default 1.
	Step uint32

	now     uint32
	output  bool
	driven  bool
	lowAt   uint32
	lowFor  uint32
	release uint32
	wave    []Segment
	queue   [][]Segment
	idle    []Segment
	starts  int
}

// NewLine returns an idle line whose clock starts at start.
func NewLine(start uint32) *Line {
	return &Line{Step: 1, now: start, driven: true}
}

// Respond queues the sensor answer for the next start condition. Start
// conditions with nothing queued get the held answer, if any.
func (l *Line) Respond(w []Segment) {
	l.mu.Lock()
	l.queue = append(l.queue, w)
	l.mu.Unlock()
}

// RespondFrame queues a nominal-timing answer carrying frame.
func (l *Line) RespondFrame(frame [5]byte) { l.Respond(Waveform(DHT11, frame)) }

// Hold sets the answer given when nothing is queued, so the line behaves like
// a sensor that keeps reporting the same values. Nil restores silence.
func (l *Line) Hold(w []Segment) {
	l.mu.Lock()
	l.idle = w
	l.mu.Unlock()
}

// HoldFrame holds a nominal-timing answer carrying frame.
func (l *Line) HoldFrame(frame [5]byte) { l.Hold(Waveform(DHT11, frame)) }

// Starts returns how many start conditions the host has sent.
func (l *Line) Starts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}

// LastStartPulse is how long the host held the line low most recently.
func (l *Line) LastStartPulse() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return time.Duration(l.lowFor) * time.Microsecond
}

// IsOutput reports whether the host is currently driving the line.
func (l *Line) IsOutput() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.output
}

// ---- dht11.Pin ----

func (l *Line) ConfigureOutput(initial bool) error {
	l.mu.Lock()
	l.output = true
	l.setLocked(initial)
	l.mu.Unlock()
	return nil
}

func (l *Line) ConfigureInput() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	wasOutput := l.output
	l.output = false
	l.release = l.now
	l.wave = nil
	if wasOutput && l.lowFor > 0 {
		l.starts++
		if len(l.queue) > 0 {
			l.wave = l.queue[0]
			l.queue = l.queue[1:]
		} else {
			l.wave = l.idle
		}
	}
	return nil
}

func (l *Line) Set(level bool) {
	l.mu.Lock()
	l.setLocked(level)
	l.mu.Unlock()
}

func (l *Line) setLocked(level bool) {
	if !l.output {
		return
	}
	switch {
	case l.driven && !level:
		l.lowAt = l.now
		l.lowFor = 0
	case !l.driven && level:
		l.lowFor = l.now - l.lowAt
	}
	l.driven = level
}

func (l *Line) Get() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.output {
		return l.driven
	}
	at := l.now - l.release
	for _, s := range l.wave {
		if at < s.Micros {
			return s.Level
		}
		at -= s.Micros
	}
	return true
}

// ---- dht11.Clock ----

func (l *Line) Micros() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	step := l.Step
	if step == 0 {
		step = 1
	}
	l.now += step
	return l.now
}

func (l *Line) Sleep(d time.Duration) {
	l.mu.Lock()
	l.now += uint32(d / time.Microsecond)
	l.mu.Unlock()
}
