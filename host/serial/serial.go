// Package serial opens the USB CDC link to the controller
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

var ErrNoDevice = errors.New("no serial device given")

// Port is an open serial link
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read
	Flush() error
}

// Config holds serial port settings
type Config struct {
	Device string

	// Baud is ignored by USB CDC but required by real UARTs
	Baud int

	// ReadTimeout bounds each Read; zero blocks. The host transport
	// expects a timeout so it can notice Close.
	ReadTimeout time.Duration
}

// DefaultConfig returns settings for the controller's USB port
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Validate checks the settings before the port is opened
func (c *Config) Validate() error {
	if c.Device == "" {
		return ErrNoDevice
	}
	if c.Baud <= 0 {
		return fmt.Errorf("baud %d: must be positive", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read timeout %v: must not be negative", c.ReadTimeout)
	}
	return nil
}

// nativePort wraps tarm/serial
type nativePort struct {
	port *serial.Port
}

// Open opens the serial device described by cfg
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, ErrNoDevice
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &nativePort{port: port}, nil
}

func (p *nativePort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *nativePort) Write(b []byte) (int, error) { return p.port.Write(b) }
func (p *nativePort) Flush() error                { return p.port.Flush() }
func (p *nativePort) Close() error                { return p.port.Close() }
