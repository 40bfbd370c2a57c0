//go:build rp2040 || rp2350

package main

import "machine"

var debugUART *machine.UART

// InitDebugUART routes core.DebugPrintln to UART0 at 115200 baud.
// USB CDC carries the link, so debug text needs its own port.
func InitDebugUART() bool {
	debugUART = machine.UART0
	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       debugTX,
		RX:       debugRX,
	})
	if err != nil {
		debugUART = nil
		return false
	}
	return true
}

func debugWrite(msg string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(msg))
	debugUART.Write([]byte("\r\n"))
}
