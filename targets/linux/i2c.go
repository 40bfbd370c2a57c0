//go:build linux && !tinygo

package main

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// i2cSlave is I2C_SLAVE from linux/i2c-dev.h
const i2cSlave = 0x0703

// i2cBus is a tinygo drivers.I2C over /dev/i2c-N
type i2cBus struct {
	mu   sync.Mutex
	f    *os.File
	addr uint16
}

func openI2C(bus int) (*i2cBus, error) {
	f, err := os.OpenFile(fmt.Sprintf("/dev/i2c-%d", bus), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &i2cBus{f: f}, nil
}

// Tx writes w then reads into r as two transfers
func (b *i2cBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if addr != b.addr {
		if err := unix.IoctlSetInt(int(b.f.Fd()), i2cSlave, int(addr)); err != nil {
			return fmt.Errorf("i2c address 0x%02x: %w", addr, err)
		}
		b.addr = addr
	}
	if len(w) > 0 {
		if _, err := b.f.Write(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if _, err := b.f.Read(r); err != nil {
			return err
		}
	}
	return nil
}

func (b *i2cBus) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), []byte{reg}, buf)
}

func (b *i2cBus) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return b.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

func (b *i2cBus) Close() error {
	return b.f.Close()
}
