package pagestore

import (
	"fmt"
	"strings"
)

// Kind classifies an entry of the warning log.
type Kind int

const (
	KindDuplicate Kind = iota
	KindOutOfRange
	KindUnsupportedRecord
	KindMissing
	KindMissingCRC
	KindReadFailed
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindDuplicate:
		return "duplicate"
	case KindOutOfRange:
		return "out-of-range"
	case KindUnsupportedRecord:
		return "unsupported-record"
	case KindMissing:
		return "missing"
	case KindMissingCRC:
		return "missing-crc"
	case KindReadFailed:
		return "read-failed"
	default:
		return "unknown"
	}
}

// Warning is one entry of the conversion log.
// Address holds the byte address for address-bearing kinds and the record
// type for KindUnsupportedRecord.
type Warning struct {
	Kind    Kind
	Address uint32
}

// String renders the warning the way it is shown to users.
func (w Warning) String() string {
	switch w.Kind {
	case KindDuplicate:
		return fmt.Sprintf("Warning: Address 0x%x is defined multiple times", w.Address)
	case KindOutOfRange:
		return fmt.Sprintf("Warning: Write beyond 16KB window at 0x%x", w.Address)
	case KindUnsupportedRecord:
		return fmt.Sprintf("Warning: Unsupported record type 0x%x ignored", w.Address)
	case KindMissing:
		return fmt.Sprintf("ERROR: Missing byte at 0x%x within required 16KB window", w.Address)
	case KindMissingCRC:
		return fmt.Sprintf("ERROR: Missing byte at 0x%x during CRC (strict)", w.Address)
	case KindReadFailed:
		return fmt.Sprintf("ERROR: Read failed at 0x%x", w.Address)
	default:
		return fmt.Sprintf("Warning: 0x%x", w.Address)
	}
}

// Log is an ordered list of warnings.
type Log struct {
	entries []Warning
}

// Add appends a warning.
func (l *Log) Add(kind Kind, addr uint32) {
	l.entries = append(l.entries, Warning{Kind: kind, Address: addr})
}

// Entries returns a copy of the logged warnings in order.
func (l *Log) Entries() []Warning {
	out := make([]Warning, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of logged warnings.
func (l *Log) Len() int {
	return len(l.entries)
}

// Last returns the most recent warning.
func (l *Log) Last() (Warning, bool) {
	if len(l.entries) == 0 {
		return Warning{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Count returns how many warnings of the given kind were logged.
func (l *Log) Count(kind Kind) int {
	n := 0
	for _, w := range l.entries {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

// Reset drops all entries.
func (l *Log) Reset() {
	l.entries = nil
}

// String renders the log one warning per line.
func (l *Log) String() string {
	var sb strings.Builder
	for _, w := range l.entries {
		sb.WriteString(w.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
