//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"

	"leadscrew/core"
	"leadscrew/lathe"
	"leadscrew/protocol"
	steppio "leadscrew/targets/pio"
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgerrors uint32

	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Clear any watchdog left running across a reset
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	if InitDebugUART() {
		core.SetDebugWriter(debugWrite)
		core.SetDebugEnabled(true)
	}

	InitClock()
	core.TimerInit()

	gpio := NewRPGPIODriver()
	core.SetGPIODriver(gpio)

	cfg := engineConfig()
	lathe.RegisterCommands(cfg, statusIntervalMS)

	backend, err := steppio.NewBackend(stepPin, dirPin, false, false, pulseWidthUS, pulsePeriodUS)
	if err != nil {
		halt("step backend: " + err.Error())
	}
	pins := buttonPins
	enablePin := core.GPIOPin(enable)
	l, err := lathe.New(lathe.Options{
		Engine:           cfg,
		PulsePeriodUS:    pulsePeriodUS,
		StatusIntervalMS: statusIntervalMS,
		Backend:          backend,
		GPIO:             gpio,
		Enable:           &enablePin,
		Buttons:          &pins,
		Screen:           initLCD(),
		Cols:             lcdCols,
		Rows:             lcdRows,
	})
	if err != nil {
		halt("lathe: " + err.Error())
	}
	core.DebugPrintln("[BOOT] step backend " + backend.GetName())

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	// ACKs go out before any response the command produces
	transport.SetFlushCallback(writeUSB)
	core.SetGlobalTransport(transport)

	encoderA.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	encoderB.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	err = encoderA.SetInterrupt(machine.PinRising, func(machine.Pin) {
		l.OnEncoderEdge(encoderB.Get())
	})
	if err != nil {
		halt("encoder interrupt: " + err.Error())
	}

	UpdateSystemTime()
	l.Start()

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				in := protocol.NewSliceInputBuffer(data)
				transport.Receive(in)
				if consumed := originalLen - in.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			core.ProcessTimers()
			l.Service()
		}()

		// Yield to the USB reader
		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop moves USB bytes into the input FIFO
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(time.Millisecond)
				continue
			}

			// First byte after a disconnect starts a fresh session
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				core.ResetFirmwareState()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{data}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains the output buffer. Repeated failures mean the host is
// gone; stale output is dropped instead of retried.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}

// halt reports a fatal boot error and stops
func halt(reason string) {
	core.DebugPrintln("[BOOT] " + reason)
	for {
		time.Sleep(time.Second)
	}
}
