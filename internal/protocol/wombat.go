package protocol

import "time"

// Serial Wombat 8B (CH32V003) target parameters
const (
	DefaultAddress  = 0x6C
	DefaultBaudRate = 115200

	FlashBase    = 0x08000000
	FlashSize    = 0x4000
	RowSize      = 64
	RowWords     = RowSize / 4
	BlankWord    = 0xFFFFFFFF
	ProgressStep = 128
)

// Settle delays used around resets and writes
const (
	BootSettle  = 2000 * time.Millisecond
	RowSettle   = 10 * time.Millisecond
	ApplySettle = 100 * time.Millisecond
	ResetSettle = 1000 * time.Millisecond
)

// RowAddress returns the flash address of the row starting at wordAddress.
func RowAddress(wordAddress uint32) uint32 {
	return wordAddress*4 + FlashBase
}
