// Package pagestore implements a sparse byte image kept in persistent,
// page-granular storage. Every byte carries a present/absent bit so that an
// image can be checked for completeness without ever holding the whole
// address space in memory.
package pagestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// PageSize is the number of data bytes in a page.
	PageSize = 256
	// ValidBytes is the size of a page's validity bitmap (one bit per byte).
	ValidBytes = PageSize / 8
	// Fill is the value reported for bytes that were never written.
	Fill = 0xFF

	DataFile  = "data.bin"
	ValidFile = "valid.bin"
)

// Store maps 32-bit addresses to bytes plus a validity bit.
type Store struct {
	data    Blob
	valid   Blob
	closers []io.Closer

	boundsSet bool
	minAddr   uint32
	maxAddr   uint32

	warnings Log
}

// New builds a store on top of a data blob and a bitmap blob.
func New(data, valid Blob) *Store {
	return &Store{data: data, valid: valid}
}

// Begin opens the flat-file store in cacheDir, creating the directory and
// both blobs if they are missing.
func Begin(cacheDir string) (*Store, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", cacheDir, err)
	}
	data, err := OpenFileBlob(filepath.Join(cacheDir, DataFile))
	if err != nil {
		return nil, err
	}
	valid, err := OpenFileBlob(filepath.Join(cacheDir, ValidFile))
	if err != nil {
		data.Close()
		return nil, err
	}
	return New(data, valid), nil
}

// BeginBadger opens a store whose pages live in a badger database in dir.
// An empty dir keeps everything in memory.
func BeginBadger(dir string) (*Store, error) {
	db, err := OpenBadger(dir)
	if err != nil {
		return nil, err
	}
	s := New(db.Blob("data"), db.Blob("valid"))
	s.closers = append(s.closers, db)
	return s, nil
}

// NewMem returns a store kept entirely in memory.
func NewMem() *Store {
	return New(NewMemBlob(), NewMemBlob())
}

// Close releases the backing blobs.
func (s *Store) Close() error {
	var errs []error
	if err := s.data.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.valid.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func locate(addr uint32) (page, off uint32) {
	return addr / PageSize, addr % PageSize
}

func (s *Store) readPage(page uint32, data *[PageSize]byte, valid *[ValidBytes]byte) error {
	if err := s.valid.ReadPage(page, valid[:], 0x00); err != nil {
		return fmt.Errorf("read bitmap page %d: %w", page, err)
	}
	if err := s.data.ReadPage(page, data[:], Fill); err != nil {
		return fmt.Errorf("read data page %d: %w", page, err)
	}
	return nil
}

// SetByte stores value at addr and marks it present. Writing an address that
// is already present is allowed (last write wins) but logs a duplicate
// warning. Errors are returned only for storage failures.
func (s *Store) SetByte(addr uint32, value byte) error {
	page, off := locate(addr)

	var data [PageSize]byte
	var valid [ValidBytes]byte
	if err := s.readPage(page, &data, &valid); err != nil {
		return err
	}

	idx, bit := off>>3, byte(1)<<(off&7)
	if valid[idx]&bit != 0 {
		s.warnings.Add(KindDuplicate, addr)
	}

	data[off] = value
	valid[idx] |= bit

	if err := s.data.WritePage(page, data[:]); err != nil {
		return fmt.Errorf("write data page %d: %w", page, err)
	}
	if err := s.valid.WritePage(page, valid[:]); err != nil {
		return fmt.Errorf("write bitmap page %d: %w", page, err)
	}

	s.track(addr)
	return nil
}

func (s *Store) track(addr uint32) {
	if !s.boundsSet {
		s.boundsSet = true
		s.minAddr = addr
		s.maxAddr = addr
		return
	}
	if addr < s.minAddr {
		s.minAddr = addr
	}
	if addr > s.maxAddr {
		s.maxAddr = addr
	}
}

// GetByte returns the byte at addr and whether it was ever written.
// Absent bytes read as Fill. The error reports storage failures only.
func (s *Store) GetByte(addr uint32) (byte, bool, error) {
	page, off := locate(addr)

	var data [PageSize]byte
	var valid [ValidBytes]byte
	if err := s.readPage(page, &data, &valid); err != nil {
		return 0, false, err
	}

	if valid[off>>3]&(1<<(off&7)) == 0 {
		return Fill, false, nil
	}
	return data[off], true, nil
}

// Page is a copy of one stored page.
type Page struct {
	Index uint32
	Data  [PageSize]byte
	Bits  [ValidBytes]byte
}

// Valid reports whether the byte at offset off of the page is present.
func (p *Page) Valid(off int) bool {
	return p.Bits[off>>3]&(1<<(off&7)) != 0
}

// ReadPage returns page index as a whole.
func (s *Store) ReadPage(index uint32) (*Page, error) {
	p := &Page{Index: index}
	if err := s.readPage(index, &p.Data, &p.Bits); err != nil {
		return nil, err
	}
	for off := 0; off < PageSize; off++ {
		if !p.Valid(off) {
			p.Data[off] = Fill
		}
	}
	return p, nil
}

// Clear deletes both blobs, recreates them empty and resets the bounds and
// the warning log.
func (s *Store) Clear() error {
	if err := s.data.Reset(); err != nil {
		return fmt.Errorf("clear data: %w", err)
	}
	if err := s.valid.Reset(); err != nil {
		return fmt.Errorf("clear bitmap: %w", err)
	}
	s.ResetLog()
	return nil
}

// ResetLog resets the bounds and the warning log but keeps stored bytes.
func (s *Store) ResetLog() {
	s.boundsSet = false
	s.minAddr = 0
	s.maxAddr = 0
	s.warnings.Reset()
}

// HasBounds reports whether any byte was written since the last reset.
func (s *Store) HasBounds() bool {
	return s.boundsSet
}

// MinAddress returns the lowest address written since the last reset.
func (s *Store) MinAddress() uint32 {
	return s.minAddr
}

// MaxAddress returns the highest address written since the last reset.
func (s *Store) MaxAddress() uint32 {
	return s.maxAddr
}

// Warnings returns the accumulated warning log.
func (s *Store) Warnings() *Log {
	return &s.warnings
}
