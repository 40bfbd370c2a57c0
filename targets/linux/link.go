//go:build linux && !tinygo

package main

import (
	"errors"
	"io"

	log "github.com/sirupsen/logrus"

	"leadscrew/core"
	"leadscrew/host/serial"
	"leadscrew/protocol"
)

// link serves the device side of the protocol over a serial port. A reader
// goroutine hands chunks to the main loop, which owns the transport.
type link struct {
	port   serial.Port
	log    *log.Entry
	rx     chan []byte
	input  *protocol.FifoBuffer
	output *protocol.ScratchOutput
	tr     *protocol.Transport
	done   chan struct{}
}

func newLink(port serial.Port, logger *log.Entry) *link {
	lk := &link{
		port:   port,
		log:    logger,
		rx:     make(chan []byte, 16),
		input:  protocol.NewFifoBuffer(256),
		output: protocol.NewScratchOutput(),
		done:   make(chan struct{}),
	}
	lk.tr = protocol.NewTransport(lk.output, core.DispatchCommand)
	lk.tr.SetResetCallback(func() {
		lk.input.Reset()
		lk.output.Reset()
		core.ResetFirmwareState()
	})
	lk.tr.SetFlushCallback(lk.flush)
	core.SetGlobalTransport(lk.tr)

	go lk.readLoop()
	return lk
}

func (lk *link) readLoop() {
	defer close(lk.rx)
	for {
		buf := make([]byte, 64)
		n, err := lk.port.Read(buf)
		if n > 0 {
			select {
			case lk.rx <- buf[:n]:
			case <-lk.done:
				return
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			select {
			case <-lk.done:
			default:
				lk.log.WithError(err).Warn("link read failed")
			}
			return
		}
	}
}

// buffer queues received bytes; the main loop parses them in Service
func (lk *link) buffer(chunk []byte) {
	if lk.input.Write(chunk) < len(chunk) {
		lk.log.WithField("bytes", len(chunk)).Warn("link input overflow")
	}
}

// Service parses buffered frames and writes the replies
func (lk *link) Service() {
	if lk.input.Available() > 0 {
		data := lk.input.Data()
		in := protocol.NewSliceInputBuffer(data)
		lk.tr.Receive(in)
		if consumed := len(data) - in.Available(); consumed > 0 {
			lk.input.Pop(consumed)
		}
	}
	lk.flush()
}

func (lk *link) flush() {
	out := lk.output.Result()
	if len(out) == 0 {
		return
	}
	if _, err := lk.port.Write(out); err != nil {
		lk.log.WithError(err).Debug("link write failed")
	}
	lk.output.Reset()
}

func (lk *link) Close() {
	select {
	case <-lk.done:
		return
	default:
	}
	close(lk.done)
	core.SetGlobalTransport(nil)
	lk.port.Close()
}
