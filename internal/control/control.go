// Package control sends configuration commands to a running Wombat: address
// change, reset and pin mode.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bigbag/sw8b-flasher/internal/bus"
	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

var (
	ErrInvalidAddress = errors.New("invalid I2C address, must be 0x08-0x77")
	ErrInvalidPin     = errors.New("invalid pin number")
	ErrInvalidMode    = errors.New("invalid mode value")
)

// Settle times around an address change
const (
	CommandSettle = 200 * time.Millisecond
	AddressSettle = 1500 * time.Millisecond
)

// Controller issues configuration commands. Every command holds the bus
// lock, if one is set, for its whole duration.
type Controller struct {
	bus  bus.Bus
	lock *bus.Lock

	// CommandSettle and AddressSettle default to the package constants.
	CommandSettle time.Duration
	AddressSettle time.Duration
}

// New returns a Controller for the device on b.
func New(b bus.Bus, lock *bus.Lock) *Controller {
	return &Controller{
		bus:           b,
		lock:          lock,
		CommandSettle: CommandSettle,
		AddressSettle: AddressSettle,
	}
}

func (c *Controller) acquire(ctx context.Context) (func(), error) {
	if c.lock == nil {
		return func() {}, nil
	}
	release, err := c.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire bus: %w", err)
	}
	return release, nil
}

// ChangeAddress stores addr as the device address, resets the device so the
// address latches and, on an addressable bus, switches to it.
func (c *Controller) ChangeAddress(ctx context.Context, addr uint8) error {
	if !protocol.ValidAddress(addr) {
		return fmt.Errorf("0x%02X: %w", addr, ErrInvalidAddress)
	}
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.send(protocol.SetAddress(addr)); err != nil {
		return fmt.Errorf("set address: %w", err)
	}
	if err := sleep(ctx, c.CommandSettle); err != nil {
		return err
	}
	if err := c.bus.HardReset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := sleep(ctx, c.AddressSettle); err != nil {
		return err
	}

	if a, ok := c.bus.(bus.Addressable); ok {
		if err := a.SetAddress(addr); err != nil {
			return err
		}
	}
	return nil
}

// Reset restarts the device.
func (c *Controller) Reset(ctx context.Context) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := c.bus.HardReset(); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// SetPinMode configures pin for mode.
func (c *Controller) SetPinMode(ctx context.Context, pin, mode uint8) error {
	if pin >= protocol.PinCount {
		return fmt.Errorf("pin %d: %w", pin, ErrInvalidPin)
	}
	if mode > protocol.MaxPinMode {
		return fmt.Errorf("mode %d: %w", mode, ErrInvalidMode)
	}
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return c.send(protocol.SetPinMode(pin, mode))
}

func (c *Controller) send(tx protocol.Frame) error {
	rx, err := c.bus.Transfer(tx)
	if err != nil {
		return err
	}
	return protocol.CheckReply(tx, rx)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
