//go:build (rp2040 || rp2350) && uart

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

// Build with -tags uart to talk to the host on UART0 (TX=GPIO0, RX=GPIO1)
// instead of USB CDC.
const uartBaud = 250000

var errNoData = errors.New("uart: no data")

var (
	uartRx  [64]byte
	uartPos int
	uartLen int
)

func initLink() {
	_ = uartx.UART0.Configure(uartx.UARTConfig{
		BaudRate: uartBaud,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
}

// linkAvailable refills the receive buffer, waiting at most a millisecond
func linkAvailable() int {
	if uartPos < uartLen {
		return uartLen - uartPos
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	n, _ := uartx.UART0.RecvSomeContext(ctx, uartRx[:])
	cancel()
	uartPos, uartLen = 0, n
	return n
}

func linkRead() (byte, error) {
	if uartPos >= uartLen {
		return 0, errNoData
	}
	b := uartRx[uartPos]
	uartPos++
	return b, nil
}

func linkWrite(data []byte) (int, error) {
	return uartx.UART0.Write(data)
}
