// Package detect finds Wombats on an I2C bus or on serial ports.
package detect

import (
	"context"
	"fmt"

	"github.com/bigbag/sw8b-flasher/internal/bus"
	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

// Default scan range: the 7-bit addresses outside the reserved blocks.
const (
	FirstAddress = protocol.MinAddress
	LastAddress  = protocol.MaxAddress
)

// Result represents a detected Wombat.
type Result struct {
	Address uint8
	Port    string
	Version string
	Boot    bool
}

// Mode returns "boot" or "app".
func (r Result) Mode() string {
	if r.Boot {
		return "boot"
	}
	return "app"
}

// Scan probes every address in [first, last] with a version query and
// returns the devices that answered. The device's original address is
// restored afterwards. If lock is not nil it is held for the whole scan.
func Scan(ctx context.Context, dev bus.Addressable, lock *bus.Lock, first, last uint8) ([]Result, error) {
	if first > last {
		return nil, fmt.Errorf("invalid scan range 0x%02X-0x%02X", first, last)
	}
	if lock != nil {
		release, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire bus: %w", err)
		}
		defer release()
	}

	orig := dev.Address()
	defer dev.SetAddress(orig)

	var results []Result
	for addr := int(first); addr <= int(last); addr++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if err := dev.SetAddress(uint8(addr)); err != nil {
			return results, fmt.Errorf("select address 0x%02X: %w", addr, err)
		}
		v, err := query(dev)
		if err != nil {
			continue
		}
		results = append(results, Result{
			Address: uint8(addr),
			Version: v.String(),
			Boot:    v.InBoot(),
		})
	}
	return results, nil
}

// Probe queries the device currently selected on b.
func Probe(b bus.Bus) (*Result, error) {
	v, err := query(b)
	if err != nil {
		return nil, err
	}
	r := &Result{Version: v.String(), Boot: v.InBoot()}
	if a, ok := b.(bus.Addressable); ok {
		r.Address = a.Address()
	}
	return r, nil
}

// DetectOnPort probes a Wombat on a specific serial port.
func DetectOnPort(portName string, baudRate int) (*Result, error) {
	s, err := bus.OpenSerial(portName, baudRate)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	r, err := Probe(s)
	if err != nil {
		return nil, err
	}
	r.Port = portName
	return r, nil
}

// ListDevices probes all serial ports and returns every Wombat found.
func ListDevices(baudRate int) ([]Result, error) {
	ports, err := bus.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}

	var results []Result
	for _, portName := range ports {
		r, err := DetectOnPort(portName, baudRate)
		if err == nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// DetectDevice returns the first Wombat found on a serial port.
func DetectDevice(baudRate int) (*Result, error) {
	ports, err := bus.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no serial ports found")
	}

	var lastErr error
	for _, portName := range ports {
		r, err := DetectOnPort(portName, baudRate)
		if err != nil {
			lastErr = err
			continue
		}
		return r, nil
	}
	return nil, fmt.Errorf("no Wombat found (last error: %w)", lastErr)
}

func query(b bus.Bus) (protocol.Version, error) {
	rx, err := b.Transfer(protocol.QueryVersion())
	if err != nil {
		return protocol.Version{}, err
	}
	return protocol.ParseVersion(rx)
}
