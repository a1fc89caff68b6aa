package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"dhtlink/types"
)

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Link is one open upstream connection.
type Link interface {
	Send(env types.BridgeEnvelope) error
	// Done yields the error that ended the link, once.
	Done() <-chan error
	Close() error
}

// Transport is a pluggable link dialler.
type Transport interface {
	// Open connects and starts delivering upstream publishes to inbound.
	Open(ctx context.Context, inbound func(types.BridgeEnvelope)) (Link, error)
	String() string
}

type transportFactory func(types.BridgeTransport) (Transport, error)

var (
	regMu     sync.RWMutex
	registry  = map[string]transportFactory{}
	errNoDial = errors.New("UARTDial not implemented")
)

// RegisterTransport allows external packages to add transports (eg. "ws", "tcp").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg types.BridgeTransport) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "uart":
		return newUARTTransport(cfg)
	case "mqtt":
		return newMQTTTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// -----------------------------------------------------------------------------
// UART
// -----------------------------------------------------------------------------

// UARTDial is injected by platform code (eg. in main).
// It must open and return an io.ReadWriteCloser over the configured UART.
var UARTDial func(ctx context.Context, u types.UARTLink) (io.ReadWriteCloser, error)

// PingEvery is the heartbeat period on framed links. A peer that stays silent
// for three periods is treated as gone.
var PingEvery = 5 * time.Second

type uartTransport struct {
	cfg types.UARTLink
}

func newUARTTransport(cfg types.BridgeTransport) (Transport, error) {
	if cfg.UART == nil {
		return nil, errors.New("uart transport requires uart config")
	}
	if cfg.UART.Baud <= 0 {
		return nil, fmt.Errorf("uart baud must be positive, got %d", cfg.UART.Baud)
	}
	return &uartTransport{cfg: *cfg.UART}, nil
}

func (u *uartTransport) Open(ctx context.Context, inbound func(types.BridgeEnvelope)) (Link, error) {
	if UARTDial == nil {
		return nil, errNoDial
	}
	rwc, err := UARTDial(ctx, u.cfg)
	if err != nil {
		return nil, err
	}
	return newFrameLink(rwc, inbound), nil
}

func (u *uartTransport) String() string { return "uart" }

// frameLink runs the framed protocol over a byte stream: pub frames carry a
// JSON envelope, ping is answered with pong, close ends the link.
type frameLink struct {
	rwc    io.ReadWriteCloser
	wmu    sync.Mutex
	wr     *framedWriter
	lastRx atomic.Int64 // unix nanos
	every  time.Duration

	done     chan error
	stop     chan struct{}
	failOnce sync.Once
	stopOnce sync.Once
}

func newFrameLink(rwc io.ReadWriteCloser, inbound func(types.BridgeEnvelope)) *frameLink {
	l := &frameLink{
		rwc:   rwc,
		wr:    newFramedWriter(rwc),
		done:  make(chan error, 1),
		stop:  make(chan struct{}),
		every: PingEvery,
	}
	l.lastRx.Store(time.Now().UnixNano())
	go l.readLoop(inbound)
	go l.heartbeat()
	return l
}

func (l *frameLink) fail(err error) {
	l.failOnce.Do(func() { l.done <- err })
}

func (l *frameLink) write(f Frame) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return l.wr.WriteFrame(f)
}

func (l *frameLink) readLoop(inbound func(types.BridgeEnvelope)) {
	rd := newFramedReader(l.rwc)
	for {
		f, err := rd.ReadFrame()
		if err != nil {
			l.fail(err)
			return
		}
		l.lastRx.Store(time.Now().UnixNano())
		switch f.Type {
		case framePing:
			if err := l.write(Frame{Type: framePong}); err != nil {
				l.fail(err)
				return
			}
		case framePong:
		case framePub:
			var env types.BridgeEnvelope
			if err := json.Unmarshal(f.Payload, &env); err != nil {
				println("[bridge] bad pub frame:", err.Error())
				continue
			}
			if inbound != nil {
				inbound(env)
			}
		case frameClose:
			l.fail(errors.New("peer closed link"))
			return
		default:
			// Unknown frame types are ignored.
		}
	}
}

func (l *frameLink) heartbeat() {
	tick := time.NewTicker(l.every)
	defer tick.Stop()
	for {
		select {
		case <-l.stop:
			return
		case now := <-tick.C:
			if now.Sub(time.Unix(0, l.lastRx.Load())) > 3*l.every {
				l.fail(errors.New("peer silent"))
				return
			}
			if err := l.write(Frame{Type: framePing}); err != nil {
				l.fail(err)
				return
			}
		}
	}
}

func (l *frameLink) Send(env types.BridgeEnvelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return l.write(Frame{Type: framePub, Payload: b})
}

func (l *frameLink) Done() <-chan error { return l.done }

func (l *frameLink) Close() error {
	var err error
	l.stopOnce.Do(func() {
		close(l.stop)
		err = l.rwc.Close()
	})
	return err
}

// -----------------------------------------------------------------------------
// Framing: [type][len hi][len lo][payload]
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameClose byte = 0x7f
)

// Frame is a simple length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}
