//go:build linux

package bus

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// i2c-dev ioctl selecting the 7-bit target address
const i2cSlave = 0x0703

// I2C is a Linux i2c-dev adapter talking to one target address at a time.
type I2C struct {
	f       *os.File
	busNum  int
	address uint8
}

// OpenI2C opens /dev/i2c-<busNum> and selects address. The adapter node is
// locked exclusively until Close, so a second opener in any process gets
// ErrBusy.
func OpenI2C(busNum int, address uint8) (*I2C, error) {
	f, err := openExclusive(fmt.Sprintf("/dev/i2c-%d", busNum))
	if err != nil {
		return nil, err
	}

	d := &I2C{f: f, busNum: busNum}
	if err := d.SetAddress(address); err != nil {
		f.Close()
		return nil, err
	}
	return d, nil
}

// openExclusive opens path read-write and takes a non-blocking flock on it.
func openExclusive(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrBusy)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return f, nil
}

// SetAddress selects the target for subsequent transfers.
func (d *I2C) SetAddress(addr uint8) error {
	if err := unix.IoctlSetInt(int(d.f.Fd()), i2cSlave, int(addr)); err != nil {
		return fmt.Errorf("select i2c address 0x%02X: %w", addr, err)
	}
	d.address = addr
	return nil
}

// Address returns the selected target address.
func (d *I2C) Address() uint8 {
	return d.address
}

// Transfer writes tx and reads the reply frame.
func (d *I2C) Transfer(tx protocol.Frame) (protocol.Frame, error) {
	var rx protocol.Frame
	if _, err := d.f.Write(tx[:]); err != nil {
		return rx, fmt.Errorf("i2c write to 0x%02X: %w", d.address, err)
	}
	if _, err := io.ReadFull(d.f, rx[:]); err != nil {
		return rx, fmt.Errorf("i2c read from 0x%02X: %w", d.address, err)
	}
	return rx, nil
}

// HardReset sends the software reset frame. The target restarts without
// replying.
func (d *I2C) HardReset() error {
	tx := protocol.SoftReset()
	if _, err := d.f.Write(tx[:]); err != nil {
		return fmt.Errorf("i2c reset 0x%02X: %w", d.address, err)
	}
	return nil
}

// Close closes the adapter.
func (d *I2C) Close() error {
	return d.f.Close()
}
