// Package bus carries Wombat frames over I2C or a UART and arbitrates
// ownership of the link between flashing, scanning and bridging.
package bus

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"

	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// ErrBusy is returned by TryAcquire while another transaction holds the bus,
// and by OpenI2C while another process holds the adapter.
var ErrBusy = errors.New("bus busy")

// ErrNotSupported is returned by transports unavailable on this platform.
var ErrNotSupported = errors.New("not supported on this platform")

// Bus exchanges fixed-size frames with one target.
type Bus interface {
	// Transfer sends tx and reads the reply frame.
	Transfer(tx protocol.Frame) (protocol.Frame, error)
	// HardReset restarts the target.
	HardReset() error
	Close() error
}

// Addressable is a bus whose target address can be changed, such as I2C.
type Addressable interface {
	Bus
	SetAddress(addr uint8) error
	Address() uint8
}

// Lock is an ownership token for a shared bus. Multi-frame transactions
// hold it for their whole duration.
type Lock struct {
	sem *semaphore.Weighted
}

// NewLock returns an unowned lock.
func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the bus is free or ctx is done.
func (l *Lock) Acquire(ctx context.Context) (release func(), err error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return l.releaseFunc(), nil
}

// TryAcquire takes the bus if it is free and returns ErrBusy otherwise.
func (l *Lock) TryAcquire() (release func(), err error) {
	if !l.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	return l.releaseFunc(), nil
}

func (l *Lock) releaseFunc() func() {
	released := false
	return func() {
		if !released {
			released = true
			l.sem.Release(1)
		}
	}
}
