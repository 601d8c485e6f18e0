// Package image turns a populated pagestore.Store into firmware artifacts:
// the strict word-literal export, CRC-16/CCITT checks, Intel HEX dumps and
// the raw binary streamed to the target.
package image

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bigbag/sw8b-flasher/internal/ihex"
	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

const (
	// WindowStart and WindowEnd bound the CH32V003 16 KiB flash image.
	WindowStart = 0x0000
	WindowEnd   = ihex.WindowEnd

	// WordCount is the number of 16-bit tokens in a complete export.
	WordCount = (WindowEnd - WindowStart) / 2
)

// ErrIncomplete is wrapped by MissingByteError.
var ErrIncomplete = errors.New("image incomplete")

// MissingByteError reports the first absent byte of a strict operation.
type MissingByteError struct {
	Address uint32
}

func (e *MissingByteError) Error() string {
	return fmt.Sprintf("missing byte at 0x%x within required 16KB window", e.Address)
}

func (e *MissingByteError) Unwrap() error {
	return ErrIncomplete
}

// Exporter reads images out of a store. It never modifies stored bytes.
type Exporter struct {
	store *pagestore.Store
}

// NewExporter returns an exporter reading from store.
func NewExporter(store *pagestore.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportStrict writes the window [0x0000, 0x4000) as comma separated
// little-endian words ("0xXXXX"). Every byte of the window must be present:
// the first absent byte aborts the export, is logged, and is returned as a
// *MissingByteError. Nothing is written to w unless the export succeeds.
func (e *Exporter) ExportStrict(w io.Writer, trailingComma, newlineAtEnd bool) error {
	var buf bytes.Buffer
	buf.Grow(WordCount * 7)

	for a := uint32(WindowStart); a < WindowEnd; a += 2 {
		lo, ok, err := e.byteAt(a)
		if err != nil {
			return err
		}
		if !ok {
			return e.missing(a)
		}
		hi, ok, err := e.byteAt(a + 1)
		if err != nil {
			return err
		}
		if !ok {
			return e.missing(a + 1)
		}

		if a != WindowStart {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "0x%04X", uint16(lo)|uint16(hi)<<8)
	}

	if trailingComma {
		buf.WriteByte(',')
	}
	if newlineAtEnd {
		buf.WriteByte('\n')
	}

	_, err := buf.WriteTo(w)
	return err
}

// ExportStrictFile runs ExportStrict into path. The file is removed again
// when the export fails.
func (e *Exporter) ExportStrictFile(path string, trailingComma, newlineAtEnd bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	err = e.ExportStrict(f, trailingComma, newlineAtEnd)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func (e *Exporter) byteAt(addr uint32) (byte, bool, error) {
	v, ok, err := e.store.GetByte(addr)
	if err != nil {
		e.store.Warnings().Add(pagestore.KindReadFailed, addr)
		return 0, false, fmt.Errorf("read 0x%x: %w", addr, err)
	}
	return v, ok, nil
}

func (e *Exporter) missing(addr uint32) error {
	e.store.Warnings().Add(pagestore.KindMissing, addr)
	return &MissingByteError{Address: addr}
}
