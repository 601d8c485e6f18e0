// Package ihex loads Intel HEX text into a pagestore.Store.
//
// The parser is deliberately permissive: a malformed line is skipped and
// parsing continues. Skipped lines are available as diagnostics; only
// storage failures abort a load.
package ihex

import (
	"errors"
	"strings"
)

// RecordType is the Intel HEX record type field.
type RecordType byte

const (
	TypeData                  RecordType = 0x00
	TypeEOF                   RecordType = 0x01
	TypeExtendedLinearAddress RecordType = 0x04
)

// MinLineLength is the length of a record without data bytes: ':' plus
// count, address, type and checksum fields.
const MinLineLength = 11

// WindowEnd bounds the CH32V003 16 KiB flash window. Data beyond it is
// stored but reported.
const WindowEnd = 0x4000

var (
	ErrTooShort        = errors.New("line too short")
	ErrNoStartCode     = errors.New("missing ':' start code")
	ErrBadHex          = errors.New("non-hex character")
	ErrLengthMismatch  = errors.New("byte count does not match line length")
	ErrChecksum        = errors.New("checksum mismatch")
	ErrExtendedAddress = errors.New("extended linear address record must carry 2 bytes")
)

// Record is one decoded line.
type Record struct {
	Length   byte
	Address  uint16
	Type     RecordType
	Data     []byte
	Checksum byte
	// Computed is the checksum calculated over the decoded bytes.
	Computed byte
}

// ChecksumOK reports whether the declared checksum matches the computed one.
func (r *Record) ChecksumOK() bool {
	return r.Checksum == r.Computed
}

// Normalize strips a trailing carriage return and every ASCII whitespace
// character from a raw line.
func Normalize(raw string) string {
	raw = strings.TrimSuffix(raw, "\r")
	return strings.Map(func(c rune) rune {
		switch c {
		case ' ', '\t', '\n', '\v', '\f', '\r':
			return -1
		}
		return c
	}, raw)
}

func nibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// hexByte decodes two hex digits at s[i:]; callers have validated the digits.
func hexByte(s string, i int) byte {
	hi, _ := nibble(s[i])
	lo, _ := nibble(s[i+1])
	return hi<<4 | lo
}

// ParseRecord decodes a raw line. The checksum is computed but not enforced;
// callers decide via Record.ChecksumOK.
func ParseRecord(raw string) (*Record, error) {
	line := Normalize(raw)

	if len(line) < MinLineLength {
		return nil, ErrTooShort
	}
	if line[0] != ':' {
		return nil, ErrNoStartCode
	}
	for i := 1; i < len(line); i++ {
		if _, ok := nibble(line[i]); !ok {
			return nil, ErrBadHex
		}
	}

	n := hexByte(line, 1)
	if len(line) != MinLineLength+int(n)*2 {
		return nil, ErrLengthMismatch
	}

	rec := &Record{
		Length:   n,
		Address:  uint16(hexByte(line, 3))<<8 | uint16(hexByte(line, 5)),
		Type:     RecordType(hexByte(line, 7)),
		Checksum: hexByte(line, len(line)-2),
		Data:     make([]byte, n),
	}

	var sum uint32
	for i := 1; i < len(line)-2; i += 2 {
		sum += uint32(hexByte(line, i))
	}
	rec.Computed = byte((0x100 - (sum & 0xFF)) & 0xFF)

	for i := range rec.Data {
		rec.Data[i] = hexByte(line, 9+i*2)
	}
	return rec, nil
}
