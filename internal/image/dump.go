package image

import (
	"fmt"
	"io"

	"github.com/marcinbor85/gohex"

	"github.com/bigbag/sw8b-flasher/internal/pagestore"
)

// hexLineLength is the number of data bytes per emitted record.
const hexLineLength = 16

// DumpHex writes every present byte in [start, end) as Intel HEX.
// Absent bytes are left out, so gaps survive a dump/load cycle.
func (e *Exporter) DumpHex(w io.Writer, start, end uint32) error {
	mem := gohex.NewMemory()

	var run []byte
	var runStart uint32
	flush := func() error {
		if len(run) == 0 {
			return nil
		}
		if err := mem.AddBinary(runStart, run); err != nil {
			return fmt.Errorf("add segment at 0x%x: %w", runStart, err)
		}
		run = nil
		return nil
	}

	for a := start; a < end; {
		page, err := e.store.ReadPage(a / pagestore.PageSize)
		if err != nil {
			return err
		}
		for off := int(a % pagestore.PageSize); off < pagestore.PageSize && a < end; off, a = off+1, a+1 {
			if !page.Valid(off) {
				if err := flush(); err != nil {
					return err
				}
				continue
			}
			if len(run) == 0 {
				runStart = a
			}
			run = append(run, page.Data[off])
		}
	}
	if err := flush(); err != nil {
		return err
	}

	return mem.DumpIntelHex(w, hexLineLength)
}
