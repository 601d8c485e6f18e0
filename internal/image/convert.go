package image

import (
	"fmt"
	"os"

	"github.com/bigbag/sw8b-flasher/internal/ihex"
	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

// Result describes a finished HEX conversion.
type Result struct {
	Binary      []byte
	Warnings    []pagestore.Warning
	Diagnostics []ihex.LineDiagnostic
	HasBounds   bool
	MinAddress  uint32
	MaxAddress  uint32
}

// ConvertFile loads the Intel HEX file at hexPath into store (after clearing
// it) and returns the strict 16 KiB binary image. On failure the returned
// Result still carries the warnings gathered so far.
func ConvertFile(store *pagestore.Store, hexPath string, enforceChecksum bool) (*Result, error) {
	if err := store.Clear(); err != nil {
		return nil, fmt.Errorf("clear cache: %w", err)
	}

	b := ihex.NewBuilder(store)
	res := &Result{}
	collect := func() {
		res.Warnings = store.Warnings().Entries()
		res.Diagnostics = b.Diagnostics()
		res.HasBounds = store.HasBounds()
		res.MinAddress = store.MinAddress()
		res.MaxAddress = store.MaxAddress()
	}

	if err := b.LoadFile(hexPath, enforceChecksum); err != nil {
		collect()
		return res, fmt.Errorf("HEX parse failed: %w", err)
	}

	bin, err := NewExporter(store).Binary()
	collect()
	if err != nil {
		return res, fmt.Errorf("text export failed: %w", err)
	}
	res.Binary = bin
	return res, nil
}

// WriteBinary converts hexPath and writes the binary image to outPath.
// A partially written output is removed.
func WriteBinary(store *pagestore.Store, hexPath, outPath string, enforceChecksum bool) (*Result, error) {
	res, err := ConvertFile(store, hexPath, enforceChecksum)
	if err != nil {
		return res, err
	}
	if err := os.WriteFile(outPath, res.Binary, 0o644); err != nil {
		os.Remove(outPath)
		return res, fmt.Errorf("write %s: %w", outPath, err)
	}
	return res, nil
}
