package bus

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/bigbag/sw8b-flasher/internal/protocol"
)

const serialReplyTimeout = 500 * time.Millisecond

// Serial talks to a Wombat over its UART interface. The frames are the same
// as on I2C.
type Serial struct {
	port     serial.Port
	portName string
	baudRate int
}

// OpenSerial opens a serial port with the specified baud rate.
func OpenSerial(portName string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}

	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Serial{
		port:     port,
		portName: portName,
		baudRate: baudRate,
	}, nil
}

// Close closes the serial port.
func (s *Serial) Close() error {
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}

// Transfer writes tx and waits for a full reply frame.
func (s *Serial) Transfer(tx protocol.Frame) (protocol.Frame, error) {
	var rx protocol.Frame

	if err := s.port.ResetInputBuffer(); err != nil {
		return rx, err
	}
	if _, err := s.port.Write(tx[:]); err != nil {
		return rx, fmt.Errorf("write frame: %w", err)
	}

	got := 0
	deadline := time.Now().Add(serialReplyTimeout)
	for got < len(rx) && time.Now().Before(deadline) {
		n, err := s.port.Read(rx[got:])
		got += n
		if err != nil && err != io.EOF {
			return rx, fmt.Errorf("read reply: %w", err)
		}
	}
	if got < len(rx) {
		return rx, fmt.Errorf("timeout waiting for reply (%d of %d bytes)", got, len(rx))
	}
	return rx, nil
}

// HardReset pulses RTS, which drives the target's reset line on the usual
// USB-UART adapter wiring.
func (s *Serial) HardReset() error {
	if err := s.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.port.SetRTS(false); err != nil {
		return err
	}
	return nil
}

// PortName returns the port name.
func (s *Serial) PortName() string {
	return s.portName
}

// BaudRate returns the current baud rate.
func (s *Serial) BaudRate() int {
	return s.baudRate
}

// ListPorts returns a list of available serial ports.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
