package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrAckTimeout      = errors.New("ack timeout")
	ErrResponseTimeout = errors.New("response timeout")
	ErrTransportClosed = errors.New("transport closed")
	ErrMessageTooLong  = errors.New("message too long")
	ErrNak             = errors.New("frame rejected by device")
)

const (
	DefaultAckTimeout = 2 * time.Second
	sendAttempts      = 3
	readIdleDelay     = 10 * time.Millisecond
)

// ResponseHandler is called from the reader goroutine for every response
type ResponseHandler func(cmdID uint16, data *[]byte) error

// Message is one received frame
type Message struct {
	Sequence uint8
	Payload  []byte
}

// Decode splits a response payload into its message ID and arguments
func (m *Message) Decode() (uint16, []byte, error) {
	data := m.Payload
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return 0, nil, err
	}
	return uint16(id), data, nil
}

// HostTransport is the host end of the link. Commands are sent one at a
// time and each waits for the device's ACK; responses are delivered on a
// channel and, optionally, to a callback.
type HostTransport struct {
	port io.ReadWriteCloser

	seq    atomic.Uint32 // sequence of the next command, 0x10..0x1F
	synced atomic.Bool

	input *FifoBuffer

	sendMu sync.Mutex
	acks   chan uint8

	responses chan *Message

	handlerMu sync.RWMutex
	handler   ResponseHandler

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// NewHostTransport starts a reader goroutine on port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		input:     NewFifoBuffer(1024),
		acks:      make(chan uint8, 4),
		responses: make(chan *Message, 16),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	t.seq.Store(MessageDest)
	t.synced.Store(true)

	go t.readLoop()
	return t
}

// SendCommand sends one message and waits for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout sends one message, retransmitting after a NAK
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	var err error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		seq := uint8(t.seq.Load())
		frame, buildErr := buildFrame(seq, cmdID, args)
		if buildErr != nil {
			return buildErr
		}

		t.drainAcks()
		if _, werr := t.port.Write(frame); werr != nil {
			return fmt.Errorf("write frame: %w", werr)
		}

		err = t.waitForAck(seq, timeout)
		if !errors.Is(err, ErrNak) {
			return err
		}
	}
	return err
}

// buildFrame encodes a command frame with the given sequence
func buildFrame(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	body := NewScratchOutput()
	EncodeVLQUint(body, uint32(cmdID))
	if args != nil {
		args(body)
	}
	payload := body.Result()

	msgLen := MessageLengthMin + len(payload)
	if msgLen > MessageLengthMax {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLong, msgLen, MessageLengthMax)
	}

	frame := make([]byte, 0, msgLen)
	frame = append(frame, uint8(msgLen), seq)
	frame = append(frame, payload...)
	return appendTrailer(frame), nil
}

// waitForAck waits for the ACK of the frame sent with seq. The device
// replies with the sequence it expects next; any other value is a NAK and
// the local sequence is moved to what the device asked for.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	want := nextSequence(seq)
	select {
	case got := <-t.acks:
		t.seq.Store(uint32(got))
		if got != want {
			return fmt.Errorf("%w: sent 0x%02x, device expects 0x%02x", ErrNak, seq, got)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	case <-t.stop:
		return ErrTransportClosed
	}
}

func (t *HostTransport) drainAcks() {
	for {
		select {
		case <-t.acks:
		default:
			return
		}
	}
}

// ReceiveResponse returns the next response not yet taken
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-t.responses:
		return msg, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
	case <-t.stop:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler installs a callback for every response
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.handler = handler
	t.handlerMu.Unlock()
}

// readLoop feeds bytes from the port into the frame decoder until Close
func (t *HostTransport) readLoop() {
	defer close(t.done)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.feed(buf[:n])
		}
		if err != nil {
			select {
			case <-t.stop:
				return
			default:
			}
			// Serial ports report a read timeout as EOF; keep polling.
			time.Sleep(readIdleDelay)
		}
	}
}

// feed appends received bytes and decodes every complete frame
func (t *HostTransport) feed(chunk []byte) {
	for len(chunk) > 0 {
		n := t.input.Write(chunk)
		chunk = chunk[n:]
		t.decode()
		if n == 0 && len(chunk) > 0 {
			// A full ring without a frame boundary is garbage.
			t.input.Reset()
			t.synced.Store(false)
		}
	}
}

func (t *HostTransport) decode() {
	data := t.input.Data()

	for len(data) > 0 {
		if !t.synced.Load() {
			rest, found := skipToSync(data)
			data = rest
			if found {
				t.synced.Store(true)
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
			t.synced.Store(false)
			continue
		}

		msg := &Message{
			Sequence: data[MessagePositionSeq],
			Payload:  append([]byte(nil), data[MessageHeaderSize:msgLen-MessageTrailerSize]...),
		}
		data = data[msgLen:]
		t.deliver(msg)
	}

	t.input.Pop(t.input.Available() - len(data))
}

// deliver routes an empty frame to the ACK channel and anything else to
// the response handler and channel. When the channel is full the oldest
// response is dropped.
func (t *HostTransport) deliver(msg *Message) {
	if len(msg.Payload) == 0 {
		select {
		case t.acks <- msg.Sequence:
		default:
		}
		return
	}

	t.handlerMu.RLock()
	handler := t.handler
	t.handlerMu.RUnlock()
	if handler != nil {
		if id, args, err := msg.Decode(); err == nil {
			_ = handler(id, &args)
		}
	}

	for {
		select {
		case t.responses <- msg:
			return
		default:
		}
		select {
		case <-t.responses:
		default:
		}
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

// Reset restarts the sequence and discards queued input
func (t *HostTransport) Reset() {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.seq.Store(MessageDest)
	t.synced.Store(true)
	t.drainAcks()
	for {
		select {
		case <-t.responses:
			continue
		default:
		}
		break
	}
}

// CurrentSequence returns the sequence the next command will carry
func (t *HostTransport) CurrentSequence() uint8 {
	return uint8(t.seq.Load())
}
