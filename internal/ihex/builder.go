package ihex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

// LineDiagnostic records why a line was skipped.
type LineDiagnostic struct {
	Line   int
	Reason error
}

func (d LineDiagnostic) String() string {
	return fmt.Sprintf("line %d: %v", d.Line, d.Reason)
}

// Builder populates a store from Intel HEX records.
type Builder struct {
	store   *pagestore.Store
	extHigh uint32
	diags   []LineDiagnostic
}

// NewBuilder returns a builder writing into store.
func NewBuilder(store *pagestore.Store) *Builder {
	return &Builder{store: store}
}

// Store returns the store the builder writes into.
func (b *Builder) Store() *pagestore.Store {
	return b.store
}

// LoadFile parses the Intel HEX file at path.
func (b *Builder) LoadFile(path string, enforceChecksum bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open hex file: %w", err)
	}
	defer f.Close()

	return b.Load(f, enforceChecksum)
}

// Load parses Intel HEX text from r, applying records in order. The warning
// log and bounds of the store are reset first; previously stored bytes are
// kept. Malformed lines (and, when enforceChecksum is set, lines with a bad
// checksum) are skipped without failing the load and without a warning; see
// Diagnostics. The returned error reports read or storage failures only.
func (b *Builder) Load(r io.Reader, enforceChecksum bool) error {
	b.store.ResetLog()
	b.extHigh = 0
	b.diags = nil

	br := bufio.NewReader(r)
	for lineNo := 1; ; lineNo++ {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			if perr := b.apply(lineNo, line, enforceChecksum); perr != nil {
				return fmt.Errorf("line %d: %w", lineNo, perr)
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read hex input: %w", err)
		}
	}
}

func (b *Builder) skip(lineNo int, reason error) {
	b.diags = append(b.diags, LineDiagnostic{Line: lineNo, Reason: reason})
}

func (b *Builder) apply(lineNo int, raw string, enforceChecksum bool) error {
	rec, err := ParseRecord(raw)
	if err != nil {
		// Blank lines are not worth a diagnostic.
		if !errors.Is(err, ErrTooShort) || Normalize(raw) != "" {
			b.skip(lineNo, err)
		}
		return nil
	}
	if enforceChecksum && !rec.ChecksumOK() {
		b.skip(lineNo, fmt.Errorf("%w: declared 0x%02X, computed 0x%02X", ErrChecksum, rec.Checksum, rec.Computed))
		return nil
	}

	switch rec.Type {
	case TypeData:
		base := b.extHigh<<16 + uint32(rec.Address)
		for i, v := range rec.Data {
			addr := base + uint32(i)
			if addr >= WindowEnd {
				b.store.Warnings().Add(pagestore.KindOutOfRange, addr)
			}
			if err := b.store.SetByte(addr, v); err != nil {
				return err
			}
		}
	case TypeExtendedLinearAddress:
		if rec.Length != 2 {
			b.skip(lineNo, ErrExtendedAddress)
			return nil
		}
		b.extHigh = uint32(rec.Data[0])<<8 | uint32(rec.Data[1])
	case TypeEOF:
	default:
		b.store.Warnings().Add(pagestore.KindUnsupportedRecord, uint32(rec.Type))
	}
	return nil
}

// Diagnostics lists the lines skipped by the last load.
func (b *Builder) Diagnostics() []LineDiagnostic {
	out := make([]LineDiagnostic, len(b.diags))
	copy(out, b.diags)
	return out
}

// Warnings returns the store's warning log.
func (b *Builder) Warnings() *pagestore.Log {
	return b.store.Warnings()
}

// HasBounds reports whether the last load wrote any byte.
func (b *Builder) HasBounds() bool { return b.store.HasBounds() }

// MinAddress returns the lowest address written by the last load.
func (b *Builder) MinAddress() uint32 { return b.store.MinAddress() }

// MaxAddress returns the highest address written by the last load.
func (b *Builder) MaxAddress() uint32 { return b.store.MaxAddress() }
