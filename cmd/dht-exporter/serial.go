//go:build !rp2040 && !rp2350

package main

import (
	"context"
	"errors"
	"io"

	"go.bug.st/serial"

	"dhtlink/types"
)

// dialSerial opens a host serial port for the framed bridge transport.
func dialSerial(_ context.Context, u types.UARTLink) (io.ReadWriteCloser, error) {
	if u.Port == "" {
		return nil, errors.New("uart.port is required on hosts")
	}
	mode := &serial.Mode{
		BaudRate: u.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(u.Port, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}
