package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Frame is a fixed-size command or reply packet.
type Frame [FrameSize]byte

// ErrUnexpectedReply is returned when a reply does not match the command.
var ErrUnexpectedReply = errors.New("unexpected reply")

// DeviceError is an error reply ('E' followed by a decimal code).
type DeviceError struct {
	Command byte
	Code    int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("command 0x%02X rejected: %s", e.Command, ErrorMessage(e.Code))
}

// NewFrame returns a frame carrying cmd followed by padding bytes.
func NewFrame(cmd byte) Frame {
	f := Frame{cmd}
	for i := 1; i < FrameSize; i++ {
		f[i] = DefaultPadByte
	}
	return f
}

// QueryVersion asks the device for its version string.
func QueryVersion() Frame {
	return NewFrame(CmdVersion)
}

// JumpToBoot makes a running application restart into its bootloader.
func JumpToBoot() Frame {
	return Frame{CmdJumpToBoot, 'o', 'O', 't', 'l', 'o', 'a', 'd'}
}

// SoftReset restarts the device.
func SoftReset() Frame {
	return Frame{CmdReset, 'e', 'S', 'e', 'T', '!', '#', '*'}
}

func flashFrame(sub byte, addr uint32) Frame {
	f := NewFrame(CmdFlash)
	f[1] = sub
	binary.LittleEndian.PutUint32(f[2:6], addr)
	return f
}

// EraseFlashPage erases the page containing addr. Page 0 erases the whole
// application region.
func EraseFlashPage(addr uint32) Frame {
	return flashFrame(FlashErasePage, addr)
}

// WriteFlashRow commits the user buffer to the flash row at addr.
func WriteFlashRow(addr uint32) Frame {
	return flashFrame(FlashWriteRow, addr)
}

// ApplyFlash ends a programming session.
func ApplyFlash() Frame {
	return Frame{CmdFlash, FlashApply, 0, 0, 0, 0, 0, 0}
}

// WriteUserBuffer splits data into the frames that load it into the device
// user buffer starting at index: a start frame carrying up to four bytes,
// then continuation frames of seven bytes each. A tail shorter than seven
// bytes is sent with a new start frame at its own index.
func WriteUserBuffer(index uint16, data []byte) []Frame {
	var frames []Frame
	written := 0
	for written < len(data) {
		n := len(data) - written
		if n > userBufferFirst {
			n = userBufferFirst
		}
		f := NewFrame(CmdWriteUserBuffer)
		binary.LittleEndian.PutUint16(f[1:3], index+uint16(written))
		f[3] = byte(n)
		copy(f[4:], data[written:written+n])
		frames = append(frames, f)
		written += n

		for len(data)-written >= userBufferFollow {
			c := Frame{CmdWriteUserBufferContinue}
			copy(c[1:], data[written:written+userBufferFollow])
			frames = append(frames, c)
			written += userBufferFollow
		}
	}
	return frames
}

// SetAddress stores a new I2C address. It takes effect after a reset.
func SetAddress(addr uint8) Frame {
	return Frame{CmdSetAddress, 0x5F, 0x42, 0xAF, addr, DefaultPadByte, DefaultPadByte, DefaultPadByte}
}

// SetPinMode configures pin for mode with all mode parameters zero.
func SetPinMode(pin, mode uint8) Frame {
	return Frame{CmdSetPinMode, pin, mode, 0, 0, 0, 0, 0}
}

// ValidAddress reports whether addr is a usable 7-bit device address.
func ValidAddress(addr uint8) bool {
	return addr >= MinAddress && addr <= MaxAddress
}

// CheckReply returns a *DeviceError if rx is an error reply to tx.
func CheckReply(tx, rx Frame) error {
	if rx[0] != ReplyError {
		return nil
	}
	digits := strings.TrimRight(strings.TrimSpace(string(rx[1:6])), "\x00\x55")
	code, err := strconv.Atoi(digits)
	if err != nil {
		code = 0
	}
	return &DeviceError{Command: tx[0], Code: code}
}

// Version is the reply to QueryVersion.
type Version struct {
	Raw [FrameSize - 1]byte
}

// ParseVersion decodes a version reply.
func ParseVersion(rx Frame) (Version, error) {
	if err := CheckReply(QueryVersion(), rx); err != nil {
		return Version{}, err
	}
	if rx[0] != CmdVersion {
		return Version{}, fmt.Errorf("%w: version reply starts with 0x%02X", ErrUnexpectedReply, rx[0])
	}
	var v Version
	copy(v.Raw[:], rx[1:])
	return v, nil
}

// InBoot reports whether the reply came from the bootloader.
func (v Version) InBoot() bool {
	return v.Raw[0] == VersionBootFlag
}

// String returns the printable part of the version.
func (v Version) String() string {
	var sb strings.Builder
	for _, c := range v.Raw {
		if c >= 0x20 && c < 0x7F {
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
