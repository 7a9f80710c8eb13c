//go:build rp2040

package main

import "github.com/jangala-dev/tinygo-uartx"

// On real silicon the demo writes its log lines to UART0 instead of the
// host's stdout, the same role rp2SerialPort plays for services/hal's
// serial capability. Pins/baud default inside uartx, same as
// DefaultUARTFactory's zero-value Configure call.
type rp2Console struct{ u *uartx.UART }

func newConsole() *rp2Console {
	u := uartx.UART0
	_ = u.Configure(uartx.UARTConfig{})
	return &rp2Console{u: u}
}

func (c *rp2Console) Write(p []byte) (int, error) { return c.u.Write(p) }
