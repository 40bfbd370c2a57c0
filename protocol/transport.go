package protocol

import "sync/atomic"

// CommandHandler runs one decoded command; it consumes its own arguments
// from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the device end of the link. It validates incoming frames,
// dispatches the commands they carry and answers every frame with an
// ACK/NAK carrying the next expected sequence.
type Transport struct {
	synced  atomic.Bool
	nextSeq atomic.Uint32 // next expected host sequence, 0x10..0x1F

	output        OutputBuffer
	handler       CommandHandler
	resetCallback func()
	flushCallback func()

	dropped atomic.Uint32 // frames skipped on CRC or framing errors
}

// NewTransport creates a synchronized transport writing into output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{output: output, handler: handler}
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	return t
}

// Receive consumes every complete frame at the front of input. A partial
// frame stays in input until more bytes arrive.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()

	for len(data) > 0 {
		if !t.synced.Load() {
			rest, found := skipToSync(data)
			data = rest
			if found {
				t.synced.Store(true)
				t.sendAckNak()
			}
			continue
		}

		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		msgLen, status := checkFrame(data)
		if status == frameIncomplete {
			break
		}
		if status == frameCorrupt {
			t.dropped.Add(1)
			t.synced.Store(false)
			continue
		}

		seq := data[MessagePositionSeq]
		payload := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]

		expected := uint8(t.nextSeq.Load())
		if seq == MessageDest && expected != MessageDest {
			// The host restarted its sequence: it reconnected.
			expected = MessageDest
			t.nextSeq.Store(MessageDest)
			if t.resetCallback != nil {
				t.resetCallback()
			}
		}
		if seq == expected {
			t.nextSeq.Store(uint32(nextSequence(seq)))
			_ = t.dispatch(payload)
		}
		// A retransmitted or out of order frame gets the same reply, which
		// tells the host what we expect next.
		t.sendAckNak()
	}

	if consumed := input.Available() - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

// dispatch runs every command in one frame payload
func (t *Transport) dispatch(payload []byte) error {
	defer func() {
		if r := recover(); r != nil {
			t.synced.Store(false)
		}
	}()

	for len(payload) > 0 {
		cmdID, err := DecodeVLQUint(&payload)
		if err != nil {
			t.synced.Store(false)
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &payload); err != nil {
			return err
		}
	}
	return nil
}

// sendAckNak writes an empty frame and flushes it ahead of any responses
func (t *Transport) sendAckNak() {
	var ack [MessageLengthMin]byte
	frame := append(ack[:0], MessageLengthMin, uint8(t.nextSeq.Load()))
	t.output.Output(appendTrailer(frame))
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one frame whose payload is produced by body. Responses
// carry the current sequence, the same as the last ACK.
func (t *Transport) EncodeFrame(body func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(t.nextSeq.Load())})
	body(t.output)

	length := len(t.output.DataSince(start)) + MessageTrailerSize
	t.output.Update(start, uint8(length))

	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// SendCommand writes a frame holding one message and its arguments
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state, as after a USB reconnect
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback installs the hook run when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback installs the hook that pushes an ACK out immediately
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}

// Dropped returns the number of corrupt frames seen
func (t *Transport) Dropped() uint32 {
	return t.dropped.Load()
}
