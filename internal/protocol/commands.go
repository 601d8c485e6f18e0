package protocol

import "fmt"

// Serial Wombat command bytes
const (
	CmdVersion                 = 'V'
	CmdJumpToBoot              = 'B'
	CmdReset                   = 'R'
	CmdWriteUserBuffer         = 0x84
	CmdWriteUserBufferContinue = 0x85
	CmdFlash                   = 0xA4
	CmdSetPinMode              = 0xC8
	CmdSetAddress              = 0xAF
)

// Configuration limits
const (
	MinAddress = 0x08
	MaxAddress = 0x77
	PinCount   = 8
	MaxPinMode = 40
)

// CmdFlash sub-commands
const (
	FlashErasePage = 0x00
	FlashWriteRow  = 0x01
	FlashApply     = 0x04
)

// Reply markers
const (
	ReplyError       = 'E'
	VersionBootFlag  = 'B'
	DefaultPadByte   = 0x55
	FrameSize        = 8
	userBufferFirst  = 4
	userBufferFollow = 7
)

// ErrorMessage returns a human-readable message for a device error code.
// The Wombat reports bare numbers; the meaning depends on the firmware build.
func ErrorMessage(code int) string {
	if code == 0 {
		return "unnumbered error"
	}
	return fmt.Sprintf("device error %d", code)
}
