//go:build !linux

package bus

import "github.com/bigbag/sw8b-flasher/internal/protocol"

// I2C is a stub for non-Linux platforms, which have no i2c-dev interface.
type I2C struct{}

// OpenI2C always fails on non-Linux platforms.
func OpenI2C(busNum int, address uint8) (*I2C, error) {
	return nil, ErrNotSupported
}

func (d *I2C) SetAddress(addr uint8) error { return ErrNotSupported }

func (d *I2C) Address() uint8 { return 0 }

func (d *I2C) Transfer(tx protocol.Frame) (protocol.Frame, error) {
	return protocol.Frame{}, ErrNotSupported
}

func (d *I2C) HardReset() error { return ErrNotSupported }

func (d *I2C) Close() error { return ErrNotSupported }
