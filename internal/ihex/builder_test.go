package ihex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

// record formats a well-formed Intel HEX line.
func record(typ RecordType, addr uint16, data ...byte) string {
	var sb strings.Builder
	sum := uint32(len(data)) + uint32(addr>>8) + uint32(addr&0xFF) + uint32(typ)
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(data), addr, byte(typ))
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
		sum += uint32(b)
	}
	fmt.Fprintf(&sb, "%02X", byte((0x100-(sum&0xFF))&0xFF))
	return sb.String()
}

func load(t *testing.T, text string, enforce bool) *Builder {
	t.Helper()
	b := NewBuilder(pagestore.NewMem())
	require.NoError(t, b.Load(strings.NewReader(text), enforce))
	return b
}

func requireByte(t *testing.T, s *pagestore.Store, addr uint32, want byte, wantValid bool) {
	t.Helper()
	v, ok, err := s.GetByte(addr)
	require.NoError(t, err)
	require.Equal(t, wantValid, ok, "valid at 0x%X", addr)
	if wantValid {
		require.Equal(t, want, v, "value at 0x%X", addr)
	}
}

func TestRecordHelper(t *testing.T) {
	require.Equal(t, ":04000000AABBCCDDEE", record(TypeData, 0, 0xAA, 0xBB, 0xCC, 0xDD))
	require.Equal(t, ":00000001FF", record(TypeEOF, 0))
	require.Equal(t, ":020000040001F9", record(TypeExtendedLinearAddress, 0, 0x00, 0x01))
}

func TestLoad_TwoLineScenario(t *testing.T) {
	b := load(t, ":04000000AABBCCDDEE\n:00000001FF", true)

	s := b.Store()
	requireByte(t, s, 0, 0xAA, true)
	requireByte(t, s, 1, 0xBB, true)
	requireByte(t, s, 2, 0xCC, true)
	requireByte(t, s, 3, 0xDD, true)
	requireByte(t, s, 4, 0, false)

	require.True(t, b.HasBounds())
	require.Equal(t, uint32(0), b.MinAddress())
	require.Equal(t, uint32(3), b.MaxAddress())
	require.Zero(t, b.Warnings().Len())
	require.Empty(t, b.Diagnostics())
}

func TestLoad_ChecksumIsPureFilter(t *testing.T) {
	good := record(TypeData, 0x0100, 1, 2, 3, 4)
	bad := good[:len(good)-2] + "00"

	b := load(t, bad+"\n", true)
	for a := uint32(0x100); a < 0x104; a++ {
		requireByte(t, b.Store(), a, 0, false)
	}
	require.False(t, b.HasBounds())
	require.Zero(t, b.Warnings().Len())
	require.Len(t, b.Diagnostics(), 1)
	require.True(t, errors.Is(b.Diagnostics()[0].Reason, ErrChecksum))

	b = load(t, good+"\n", true)
	for i, a := 0, uint32(0x100); a < 0x104; i, a = i+1, a+1 {
		requireByte(t, b.Store(), a, byte(i+1), true)
	}

	// Without enforcement the corrupted line still loads.
	b = load(t, bad+"\n", false)
	requireByte(t, b.Store(), 0x100, 1, true)
}

func TestLoad_WhitespaceAndCRLF(t *testing.T) {
	line := record(TypeData, 0x0010, 0x12, 0x34)
	spaced := " " + line[:3] + " \t" + line[3:9] + " " + line[9:] + " \r\n"

	b := load(t, spaced+record(TypeEOF, 0)+"\r\n", true)
	requireByte(t, b.Store(), 0x10, 0x12, true)
	requireByte(t, b.Store(), 0x11, 0x34, true)
	require.Empty(t, b.Diagnostics())
}

func TestLoad_ExtendedLinearAddress(t *testing.T) {
	text := strings.Join([]string{
		record(TypeData, 0x0000, 0x01),
		record(TypeExtendedLinearAddress, 0, 0x00, 0x01),
		record(TypeData, 0x0010, 0xA0, 0xA1),
		record(TypeExtendedLinearAddress, 0, 0x00, 0x00),
		record(TypeData, 0x0020, 0xB0),
		record(TypeEOF, 0),
	}, "\n")

	b := load(t, text, true)
	s := b.Store()
	requireByte(t, s, 0x00000, 0x01, true)
	requireByte(t, s, 0x10010, 0xA0, true)
	requireByte(t, s, 0x10011, 0xA1, true)
	requireByte(t, s, 0x00010, 0, false)
	requireByte(t, s, 0x00020, 0xB0, true)

	require.Equal(t, uint32(0), b.MinAddress())
	require.Equal(t, uint32(0x10011), b.MaxAddress())

	require.Equal(t, 2, b.Warnings().Count(pagestore.KindOutOfRange))
	require.Equal(t, []pagestore.Warning{
		{Kind: pagestore.KindOutOfRange, Address: 0x10010},
		{Kind: pagestore.KindOutOfRange, Address: 0x10011},
	}, b.Warnings().Entries())
}

func TestLoad_ExtendedAddressWrongLength(t *testing.T) {
	text := record(TypeExtendedLinearAddress, 0, 0x00, 0x01, 0x02) + "\n" +
		record(TypeData, 0x0000, 0x77) + "\n"

	b := load(t, text, true)
	requireByte(t, b.Store(), 0, 0x77, true)
	require.Len(t, b.Diagnostics(), 1)
	require.True(t, errors.Is(b.Diagnostics()[0].Reason, ErrExtendedAddress))
}

func TestLoad_OutOfRangeStillStored(t *testing.T) {
	b := load(t, record(TypeData, 0x3FFF, 0x01, 0x02), true)
	requireByte(t, b.Store(), 0x3FFF, 0x01, true)
	requireByte(t, b.Store(), 0x4000, 0x02, true)

	last, ok := b.Warnings().Last()
	require.True(t, ok)
	require.Equal(t, pagestore.Warning{Kind: pagestore.KindOutOfRange, Address: 0x4000}, last)
	require.Equal(t, 1, b.Warnings().Len())
}

func TestLoad_UnsupportedRecord(t *testing.T) {
	b := load(t, record(0x05, 0, 0, 0, 0, 0)+"\n"+record(0x03, 0, 0, 0, 0, 0), true)
	require.Equal(t, []pagestore.Warning{
		{Kind: pagestore.KindUnsupportedRecord, Address: 0x05},
		{Kind: pagestore.KindUnsupportedRecord, Address: 0x03},
	}, b.Warnings().Entries())
	require.Equal(t, "Warning: Unsupported record type 0x5 ignored\n"+
		"Warning: Unsupported record type 0x3 ignored\n", b.Warnings().String())
	require.False(t, b.HasBounds())
}

func TestLoad_DuplicateAddresses(t *testing.T) {
	text := record(TypeData, 0x20, 1, 2) + "\n" + record(TypeData, 0x21, 9) + "\n"
	b := load(t, text, true)
	requireByte(t, b.Store(), 0x21, 9, true)
	require.Equal(t, 1, b.Warnings().Count(pagestore.KindDuplicate))
}

func TestLoad_MalformedLinesSkipped(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason error
	}{
		{"too short", ":0000", ErrTooShort},
		{"no start code", "0400000001020304F2", ErrNoStartCode},
		{"bad hex", ":04000000010203G4F2", ErrBadHex},
		{"length mismatch", ":0500000001020304F2", ErrLengthMismatch},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text := tc.line + "\n" + record(TypeData, 0x40, 0x99) + "\n"
			b := load(t, text, false)

			requireByte(t, b.Store(), 0x40, 0x99, true)
			requireByte(t, b.Store(), 0x00, 0, false)
			require.Zero(t, b.Warnings().Len())

			diags := b.Diagnostics()
			require.Len(t, diags, 1)
			require.Equal(t, 1, diags[0].Line)
			require.True(t, errors.Is(diags[0].Reason, tc.reason), "got %v", diags[0].Reason)
		})
	}
}

func TestLoad_BlankLinesIgnored(t *testing.T) {
	b := load(t, "\n\n"+record(TypeData, 0, 1)+"\n\n", true)
	requireByte(t, b.Store(), 0, 1, true)
	require.Empty(t, b.Diagnostics())
}

func TestLoad_ResetsLogButKeepsBytes(t *testing.T) {
	s := pagestore.NewMem()
	b := NewBuilder(s)
	require.NoError(t, b.Load(strings.NewReader(record(TypeData, 0x4000, 1)), true))
	require.Equal(t, 1, s.Warnings().Len())

	require.NoError(t, b.Load(strings.NewReader(record(TypeData, 0x10, 2)), true))
	require.Zero(t, s.Warnings().Len())
	require.Equal(t, uint32(0x10), b.MinAddress())
	require.Equal(t, uint32(0x10), b.MaxAddress())
	requireByte(t, s, 0x4000, 1, true)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.hex")
	require.NoError(t, os.WriteFile(path, []byte(record(TypeData, 0, 0xAB)+"\r\n:00000001FF\r\n"), 0o644))

	b := NewBuilder(pagestore.NewMem())
	require.NoError(t, b.LoadFile(path, true))
	requireByte(t, b.Store(), 0, 0xAB, true)

	err := b.LoadFile(filepath.Join(t.TempDir(), "missing.hex"), true)
	require.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(":10010000214601360121470136007EFE09D2190140")
	require.NoError(t, err)
	require.Equal(t, byte(0x10), rec.Length)
	require.Equal(t, uint16(0x0100), rec.Address)
	require.Equal(t, TypeData, rec.Type)
	require.Equal(t, byte(0x40), rec.Checksum)
	require.True(t, rec.ChecksumOK())
	require.Equal(t, []byte{0x21, 0x46, 0x01, 0x36}, rec.Data[:4])
}
