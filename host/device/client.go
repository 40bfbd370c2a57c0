// Package device talks to the controller over the command protocol
package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"leadscrew/engine"
	"leadscrew/host/serial"
	"leadscrew/protocol"
)

const (
	DefaultTimeout   = time.Second
	DefaultChunkSize = 40

	// identify is fixed so the dictionary can be fetched before it is known
	identifyID         = 1
	identifyResponseID = 0
	maxDictionaryBytes = 64 * 1024
)

// Options tunes a client
type Options struct {
	Timeout   time.Duration
	ChunkSize uint8
	Logger    *log.Entry
}

// ConfigState is the device's get_config answer
type ConfigState struct {
	Configured bool
	CRC        uint32
	Shutdown   bool
}

// Client is a connection to one controller
type Client struct {
	transport *protocol.HostTransport
	dict      *Dictionary
	log       *log.Entry
	timeout   time.Duration

	reqMu sync.Mutex

	mu       sync.Mutex
	waiters  map[uint16]chan []byte
	onStatus func(Status)

	statusID   uint16
	shutdownID uint16
	closed     atomic.Bool
}

// Dial opens a serial port and connects
func Dial(cfg *serial.Config, opts Options) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return Connect(port, opts)
}

// Connect starts the protocol on an open port and loads the dictionary.
// The port is closed if the dictionary cannot be read.
func Connect(port io.ReadWriteCloser, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}

	c := &Client{
		transport: protocol.NewHostTransport(port),
		log:       opts.Logger,
		timeout:   opts.Timeout,
		waiters:   make(map[uint16]chan []byte),
	}

	raw, err := c.retrieveDictionary(opts.ChunkSize)
	if err != nil {
		c.transport.Close()
		return nil, err
	}
	dict, err := ParseDictionary(raw)
	if err != nil {
		c.transport.Close()
		return nil, err
	}
	c.dict = dict

	if c.statusID, err = dict.ResponseID("leadscrew_status"); err != nil {
		c.transport.Close()
		return nil, err
	}
	c.shutdownID, _ = dict.ResponseID("shutdown")
	c.transport.SetResponseHandler(c.handleResponse)

	c.log.WithFields(log.Fields{
		"version":   dict.Version,
		"build":     dict.BuildVersions,
		"commands":  len(dict.Commands),
		"responses": len(dict.Responses),
		"bytes":     len(raw),
	}).Info("dictionary loaded")
	return c, nil
}

// retrieveDictionary reads the dictionary in identify chunks until a short
// chunk marks the end
func (c *Client) retrieveDictionary(chunkSize uint8) ([]byte, error) {
	var buf bytes.Buffer
	for buf.Len() < maxDictionaryBytes {
		chunk, err := c.identify(uint32(buf.Len()), chunkSize)
		if err != nil {
			return nil, fmt.Errorf("dictionary at offset %d: %w", buf.Len(), err)
		}
		buf.Write(chunk)
		if len(chunk) < int(chunkSize) {
			return buf.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("%w: larger than %d bytes", ErrBadDictionary, maxDictionaryBytes)
}

func (c *Client) identify(offset uint32, count uint8) ([]byte, error) {
	err := c.transport.SendCommandWithTimeout(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	}, c.timeout)
	if err != nil {
		return nil, c.sendError("identify", err)
	}

	deadline := time.Now().Add(c.timeout)
	for {
		msg, err := c.transport.ReceiveResponse(time.Until(deadline))
		if err != nil {
			return nil, c.sendError("identify_response", err)
		}
		id, args, err := msg.Decode()
		if err != nil || id != identifyResponseID {
			continue
		}

		respOffset, err := protocol.DecodeVLQUint(&args)
		if err != nil {
			return nil, fmt.Errorf("decode identify offset: %w", err)
		}
		if respOffset != offset {
			continue
		}
		data, err := protocol.DecodeVLQBytes(&args)
		if err != nil {
			return nil, fmt.Errorf("decode identify data: %w", err)
		}
		return data, nil
	}
}

// sendError maps transport errors onto the package sentinels
func (c *Client) sendError(what string, err error) error {
	switch {
	case errors.Is(err, protocol.ErrAckTimeout), errors.Is(err, protocol.ErrResponseTimeout):
		return fmt.Errorf("%w: %s: %v", ErrTimeout, what, err)
	case errors.Is(err, protocol.ErrTransportClosed):
		return fmt.Errorf("%w: %s", ErrNotConnected, what)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// handleResponse runs on the transport's reader goroutine
func (c *Client) handleResponse(cmdID uint16, data *[]byte) error {
	args := append([]byte(nil), (*data)...)

	c.mu.Lock()
	ch := c.waiters[cmdID]
	delete(c.waiters, cmdID)
	onStatus := c.onStatus
	c.mu.Unlock()

	var err error
	switch cmdID {
	case c.statusID:
		if onStatus != nil {
			var s Status
			if s, err = DecodeStatus(args); err == nil {
				onStatus(s)
			} else {
				c.log.WithError(err).Warn("bad status report")
			}
		}
	case c.shutdownID:
		c.log.Warn("device entered shutdown")
	}

	// Waiters are released last so a caller sees the callback's effects
	if ch != nil {
		ch <- args
	}
	return err
}

// request sends a command and, if resp is set, waits for that response
func (c *Client) request(cmd string, args func(output protocol.OutputBuffer), resp string) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrNotConnected
	}
	cmdID, err := c.dict.CommandID(cmd)
	if err != nil {
		return nil, err
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	var ch chan []byte
	var respID uint16
	if resp != "" {
		if respID, err = c.dict.ResponseID(resp); err != nil {
			return nil, err
		}
		ch = make(chan []byte, 1)
		c.mu.Lock()
		c.waiters[respID] = ch
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			if c.waiters[respID] == ch {
				delete(c.waiters, respID)
			}
			c.mu.Unlock()
		}()
	}

	if err := c.transport.SendCommandWithTimeout(cmdID, args, c.timeout); err != nil {
		return nil, c.sendError(cmd, err)
	}
	if ch == nil {
		return nil, nil
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case data := <-ch:
		return data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: no %s after %s", ErrTimeout, resp, cmd)
	}
}

func (c *Client) ackRequest(cmd string, args func(output protocol.OutputBuffer)) error {
	data, err := c.request(cmd, args, "leadscrew_ack")
	if err != nil {
		return err
	}
	result, err := protocol.DecodeVLQUint(&data)
	if err != nil {
		return fmt.Errorf("decode ack: %w", err)
	}
	if err := ackError(result); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// Status asks for one status report
func (c *Client) Status() (Status, error) {
	data, err := c.request("get_status", nil, "leadscrew_status")
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(data)
}

// SetRatio changes the gear ratio. It fails with ErrBusy while the
// carriage is moving.
func (c *Client) SetRatio(num, den uint8) error {
	err := c.ackRequest("set_ratio", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(num))
		protocol.EncodeVLQUint(output, uint32(den))
	})
	if err == nil {
		c.log.WithFields(log.Fields{"num": num, "den": den}).Info("ratio set")
	}
	return err
}

// SetMode requests a direction mode for the next turn boundary
func (c *Client) SetMode(m engine.Mode) error {
	return c.ackRequest("set_mode", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(m))
	})
}

// LatchLimit caps travel one turn past the current revolution
func (c *Client) LatchLimit() error {
	return c.ackRequest("latch_limit", nil)
}

// ResetSync re-zeroes synchronization
func (c *Client) ResetSync() error {
	return c.ackRequest("reset_sync", nil)
}

// DumpTiming makes the device print its timing ring on the debug output
func (c *Client) DumpTiming() error {
	return c.ackRequest("dump_timing", nil)
}

// Config returns the configuration checksum state
func (c *Client) Config() (ConfigState, error) {
	data, err := c.request("get_config", nil, "config")
	if err != nil {
		return ConfigState{}, err
	}
	var vals [3]uint32
	for i := range vals {
		if vals[i], err = protocol.DecodeVLQUint(&data); err != nil {
			return ConfigState{}, fmt.Errorf("decode config: %w", err)
		}
	}
	return ConfigState{Configured: vals[0] != 0, CRC: vals[1], Shutdown: vals[2] != 0}, nil
}

// FinalizeConfig stores the configuration checksum on the device
func (c *Client) FinalizeConfig(crc uint32) error {
	_, err := c.request("finalize_config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, crc)
	}, "")
	return err
}

// SetDriverEnabled drives the stepper driver enable output (OID 0,
// active low). The device ignores it while shut down.
func (c *Client) SetDriverEnabled(enabled bool) error {
	var level uint32
	if !enabled {
		level = 1
	}
	_, err := c.request("update_digital_out", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, 0)
		protocol.EncodeVLQUint(output, level)
	}, "")
	return err
}

// EmergencyStop shuts the device down: the carriage stops and the driver
// is disabled until ClearShutdown
func (c *Client) EmergencyStop() error {
	_, err := c.request("emergency_stop", nil, "")
	return err
}

// ClearShutdown lifts a shutdown
func (c *Client) ClearShutdown() error {
	_, err := c.request("clear_shutdown", nil, "")
	return err
}

// OnStatus installs a callback for every status report, pushed or polled.
// It runs on the reader goroutine.
func (c *Client) OnStatus(fn func(Status)) {
	c.mu.Lock()
	c.onStatus = fn
	c.mu.Unlock()
}

// Dictionary returns the parsed dictionary
func (c *Client) Dictionary() *Dictionary {
	return c.dict
}

// Close shuts the connection down
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.transport.Close()
}
