package dht11

import (
	"errors"

	"dhtlink/x/conv"
)

// Errors returned by Acquire. The concrete types below wrap these so callers
// can either match the class with errors.Is or inspect the detail.
var (
	ErrHandshakeTimeout = errors.New("dht11: handshake timeout")
	ErrBitTimeout       = errors.New("dht11: bit timeout")
	ErrChecksum         = errors.New("dht11: checksum mismatch")
)

// Phase names the handshake wait that did not complete.
type Phase uint8

const (
	PhaseResponse    Phase = iota // sensor pulls the line low
	PhasePullUp                   // sensor releases the line high
	PhaseStreamStart              // sensor pulls low to start the bit stream
)

func (p Phase) String() string {
	switch p {
	case PhaseResponse:
		return "response_low"
	case PhasePullUp:
		return "pullup_high"
	case PhaseStreamStart:
		return "stream_start_low"
	default:
		return "unknown"
	}
}

// HandshakeTimeoutError reports which of the three handshake levels was not
// observed within the timeout budget.
type HandshakeTimeoutError struct {
	Phase Phase
}

func (e *HandshakeTimeoutError) Error() string {
	switch e.Phase {
	case PhaseResponse:
		return "dht11: handshake timeout: response not arrived"
	case PhasePullUp:
		return "dht11: handshake timeout: pull-up not present"
	case PhaseStreamStart:
		return "dht11: handshake timeout: stream not started"
	default:
		return ErrHandshakeTimeout.Error()
	}
}

func (e *HandshakeTimeoutError) Unwrap() error { return ErrHandshakeTimeout }
func (e *HandshakeTimeoutError) Timeout() bool { return true }

// PulseKind distinguishes the two pulses captured per bit.
type PulseKind uint8

const (
	PulseMarker PulseKind = iota
	PulseData
)

func (k PulseKind) String() string {
	if k == PulseMarker {
		return "marker"
	}
	return "data"
}

// BitTimeoutError reports the first bit whose marker or data pulse hit the
// timeout sentinel during capture.
type BitTimeoutError struct {
	Bit   int // 0..39, most significant bit of byte 0 first
	Pulse PulseKind
}

func (e *BitTimeoutError) Error() string {
	if e.Pulse == PulseMarker {
		return "dht11: bit timeout: start bit " + itoa(e.Bit)
	}
	return "dht11: bit timeout: data bit " + itoa(e.Bit)
}

func (e *BitTimeoutError) Unwrap() error { return ErrBitTimeout }
func (e *BitTimeoutError) Timeout() bool { return true }

// ChecksumError carries the computed and the received checksum.
type ChecksumError struct {
	Want byte // low 8 bits of the sum of bytes 0..3
	Got  byte // byte 4 as received
}

func (e *ChecksumError) Error() string {
	return "dht11: checksum mismatch: want " + itoa(int(e.Want)) + " got " + itoa(int(e.Got))
}

func (e *ChecksumError) Unwrap() error { return ErrChecksum }
func (e *ChecksumError) Timeout() bool { return false }

func itoa(n int) string {
	var buf [12]byte
	return string(conv.Itoa(buf[:], int64(n)))
}
