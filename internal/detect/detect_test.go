package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigbag/sw8b-flasher/internal/bus"
	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// fakeI2C answers version queries for the addresses in devices and fails
// the transfer everywhere else, as a NACK would.
type fakeI2C struct {
	addr    uint8
	devices map[uint8]protocol.Frame
	visited []uint8
}

func (f *fakeI2C) Transfer(tx protocol.Frame) (protocol.Frame, error) {
	f.visited = append(f.visited, f.addr)
	rx, ok := f.devices[f.addr]
	if !ok {
		return protocol.Frame{}, errors.New("no ack")
	}
	return rx, nil
}

func (f *fakeI2C) HardReset() error { return nil }
func (f *fakeI2C) Close() error     { return nil }

func (f *fakeI2C) SetAddress(addr uint8) error {
	f.addr = addr
	return nil
}

func (f *fakeI2C) Address() uint8 { return f.addr }

func newFake() *fakeI2C {
	return &fakeI2C{
		addr: protocol.DefaultAddress,
		devices: map[uint8]protocol.Frame{
			0x6B: {'V', 'B', 'L', '0', '1', '0', '3', 0},
			0x6C: {'V', 'S', '0', '8', '2', '0', '0', 0},
			0x20: {0x12, 0x34, 0, 0, 0, 0, 0, 0}, // some other chip
		},
	}
}

func TestScan(t *testing.T) {
	dev := newFake()

	results, err := Scan(context.Background(), dev, nil, FirstAddress, LastAddress)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, Result{Address: 0x6B, Version: "BL0103", Boot: true}, results[0])
	assert.Equal(t, Result{Address: 0x6C, Version: "S08200", Boot: false}, results[1])
	assert.Equal(t, "boot", results[0].Mode())
	assert.Equal(t, "app", results[1].Mode())

	assert.Len(t, dev.visited, LastAddress-FirstAddress+1)
	assert.Equal(t, uint8(protocol.DefaultAddress), dev.Address(), "address must be restored")
}

func TestScan_InvalidRange(t *testing.T) {
	_, err := Scan(context.Background(), newFake(), nil, 0x50, 0x10)
	assert.Error(t, err)
}

func TestScan_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dev := newFake()
	results, err := Scan(ctx, dev, nil, FirstAddress, LastAddress)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	assert.Empty(t, dev.visited)
}

func TestScan_BusBusy(t *testing.T) {
	lock := bus.NewLock()
	release, err := lock.TryAcquire()
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dev := newFake()
	_, err = Scan(ctx, dev, lock, FirstAddress, LastAddress)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dev.visited)
}

func TestProbe(t *testing.T) {
	dev := newFake()

	r, err := Probe(dev)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x6C), r.Address)
	assert.False(t, r.Boot)

	require.NoError(t, dev.SetAddress(0x20))
	_, err = Probe(dev)
	assert.ErrorIs(t, err, protocol.ErrUnexpectedReply)
}
