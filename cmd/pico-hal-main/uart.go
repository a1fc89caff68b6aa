//go:build rp2040 || rp2350

package main

import (
	"context"
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"dhtlink/types"
)

// dialUART configures the requested hardware UART and wraps it as a stream
// for the bridge. Close only ends this session; the peripheral stays set up.
func dialUART(ctx context.Context, u types.UARTLink) (io.ReadWriteCloser, error) {
	var hw *uartx.UART
	switch u.Number {
	case 0:
		hw = uartx.UART0
	case 1:
		hw = uartx.UART1
	default:
		return nil, errors.New("no such uart")
	}
	if err := hw.Configure(uartx.UARTConfig{
		BaudRate: uint32(u.Baud),
		TX:       machine.Pin(u.TxPin),
		RX:       machine.Pin(u.RxPin),
	}); err != nil {
		return nil, err
	}
	sctx, cancel := context.WithCancel(ctx)
	return &uartStream{u: hw, ctx: sctx, cancel: cancel}, nil
}

type uartStream struct {
	u      *uartx.UART
	ctx    context.Context
	cancel context.CancelFunc
}

func (s *uartStream) Read(p []byte) (int, error) {
	n, err := s.u.RecvSomeContext(s.ctx, p)
	if err != nil && s.ctx.Err() != nil {
		return n, io.EOF
	}
	return n, err
}

func (s *uartStream) Write(p []byte) (int, error) {
	if s.ctx.Err() != nil {
		return 0, io.ErrClosedPipe
	}
	return s.u.Write(p)
}

func (s *uartStream) Close() error {
	s.cancel()
	return nil
}
