package control

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/sw8b-flasher/internal/bus"
	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

type fakeDevice struct {
	addr    uint8
	sent    []protocol.Frame
	events  []string
	errCode bool
}

func (f *fakeDevice) Transfer(tx protocol.Frame) (protocol.Frame, error) {
	f.sent = append(f.sent, tx)
	f.events = append(f.events, "transfer")
	if f.errCode {
		return protocol.Frame{'E', '0', '0', '0', '3', '8', 0x55, 0x55}, nil
	}
	return tx, nil
}

func (f *fakeDevice) HardReset() error {
	f.events = append(f.events, "reset")
	return nil
}

func (f *fakeDevice) Close() error { return nil }

func (f *fakeDevice) SetAddress(addr uint8) error {
	f.addr = addr
	f.events = append(f.events, "select")
	return nil
}

func (f *fakeDevice) Address() uint8 { return f.addr }

func newController(dev bus.Bus, lock *bus.Lock) *Controller {
	c := New(dev, lock)
	c.CommandSettle = 0
	c.AddressSettle = 0
	return c
}

func TestChangeAddress(t *testing.T) {
	dev := &fakeDevice{addr: protocol.DefaultAddress}

	require.NoError(t, newController(dev, nil).ChangeAddress(context.Background(), 0x6D))

	assert.Equal(t, []protocol.Frame{protocol.SetAddress(0x6D)}, dev.sent)
	assert.Equal(t, []string{"transfer", "reset", "select"}, dev.events)
	assert.Equal(t, uint8(0x6D), dev.Address())
}

func TestChangeAddress_Invalid(t *testing.T) {
	for _, addr := range []uint8{0x00, 0x07, 0x78, 0xFF} {
		dev := &fakeDevice{addr: protocol.DefaultAddress}
		err := newController(dev, nil).ChangeAddress(context.Background(), addr)
		assert.ErrorIs(t, err, ErrInvalidAddress, "address 0x%02X", addr)
		assert.Empty(t, dev.events)
	}
}

func TestChangeAddress_Rejected(t *testing.T) {
	dev := &fakeDevice{addr: protocol.DefaultAddress, errCode: true}

	err := newController(dev, nil).ChangeAddress(context.Background(), 0x10)
	var devErr *protocol.DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, 38, devErr.Code)
	assert.Equal(t, uint8(protocol.DefaultAddress), dev.Address())
}

func TestReset(t *testing.T) {
	dev := &fakeDevice{}
	require.NoError(t, newController(dev, nil).Reset(context.Background()))
	assert.Equal(t, []string{"reset"}, dev.events)
}

func TestSetPinMode(t *testing.T) {
	tests := []struct {
		name    string
		pin     uint8
		mode    uint8
		wantErr error
	}{
		{"digital io", 0, 0, nil},
		{"last pin, last mode", protocol.PinCount - 1, protocol.MaxPinMode, nil},
		{"pin out of range", protocol.PinCount, 0, ErrInvalidPin},
		{"mode out of range", 1, protocol.MaxPinMode + 1, ErrInvalidMode},
	}

	for _, tc := range tests {
		dev := &fakeDevice{}
		err := newController(dev, nil).SetPinMode(context.Background(), tc.pin, tc.mode)
		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr, tc.name)
			assert.Empty(t, dev.sent, tc.name)
			continue
		}
		require.NoError(t, err, tc.name)
		assert.Equal(t, []protocol.Frame{protocol.SetPinMode(tc.pin, tc.mode)}, dev.sent, tc.name)
	}
}

func TestCommandsWaitForLock(t *testing.T) {
	lock := bus.NewLock()
	release, err := lock.TryAcquire()
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dev := &fakeDevice{}
	c := newController(dev, lock)
	assert.ErrorIs(t, c.Reset(ctx), context.Canceled)
	assert.ErrorIs(t, c.SetPinMode(ctx, 1, 1), context.Canceled)
	assert.ErrorIs(t, c.ChangeAddress(ctx, 0x20), context.Canceled)
	assert.Empty(t, dev.events)
}
