package device

import (
	"errors"
	"fmt"

	"leadscrew/link"
)

var (
	ErrNotConnected    = errors.New("not connected")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrTimeout         = errors.New("timed out waiting for the device")
	ErrBadDictionary   = errors.New("bad dictionary")
	ErrBusy            = errors.New("carriage is still moving")
	ErrInvalidArgument = errors.New("argument out of range")
	ErrShutdown        = errors.New("device is shut down")
	ErrRejected        = errors.New("request had no effect")
)

// ackError maps a leadscrew_ack result to an error
func ackError(result uint32) error {
	switch result {
	case link.AckOK:
		return nil
	case link.AckBusy:
		return ErrBusy
	case link.AckInvalid:
		return ErrInvalidArgument
	case link.AckShutdown:
		return ErrShutdown
	case link.AckRejected:
		return ErrRejected
	}
	return fmt.Errorf("unexpected ack result %d", result)
}
