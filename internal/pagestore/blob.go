package pagestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Blob is a random-access byte store addressed in whole pages. The page size
// is the length of the buffer passed in, so one implementation serves both
// the data pages and the bitmap pages.
type Blob interface {
	// ReadPage fills buf with page index. Bytes past the end of the stored
	// blob read as fill.
	ReadPage(index uint32, buf []byte, fill byte) error
	// WritePage stores buf as page index, extending the blob as needed.
	WritePage(index uint32, buf []byte) error
	// Reset truncates the blob to zero length.
	Reset() error
	Close() error
}

// FileBlob is a Blob backed by a flat file.
type FileBlob struct {
	path string
	f    *os.File
}

// OpenFileBlob opens path for page I/O, creating an empty file if needed.
func OpenFileBlob(path string) (*FileBlob, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", path, err)
	}
	return &FileBlob{path: path, f: f}, nil
}

// ReadPage reads one page. A short or missing page is padded with fill.
func (b *FileBlob) ReadPage(index uint32, buf []byte, fill byte) error {
	for i := range buf {
		buf[i] = fill
	}
	off := int64(index) * int64(len(buf))
	n, err := b.f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read %s at %d: %w", b.path, off, err)
	}
	for i := n; i < len(buf); i++ {
		buf[i] = fill
	}
	return nil
}

// WritePage writes one page at its offset.
func (b *FileBlob) WritePage(index uint32, buf []byte) error {
	off := int64(index) * int64(len(buf))
	if _, err := b.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("write %s at %d: %w", b.path, off, err)
	}
	return nil
}

// Reset removes the file and recreates it empty.
func (b *FileBlob) Reset() error {
	if err := b.f.Close(); err != nil {
		return err
	}
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s: %w", b.path, err)
	}
	f, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to recreate blob %s: %w", b.path, err)
	}
	b.f = f
	return nil
}

// Close closes the underlying file.
func (b *FileBlob) Close() error {
	if b.f != nil {
		return b.f.Close()
	}
	return nil
}

// Path returns the file path.
func (b *FileBlob) Path() string {
	return b.path
}

// MemBlob keeps pages in memory. Used for dry runs and tests.
type MemBlob struct {
	mu    sync.Mutex
	pages map[uint32][]byte
}

// NewMemBlob returns an empty in-memory blob.
func NewMemBlob() *MemBlob {
	return &MemBlob{pages: make(map[uint32][]byte)}
}

func (b *MemBlob) ReadPage(index uint32, buf []byte, fill byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page, ok := b.pages[index]
	if !ok {
		for i := range buf {
			buf[i] = fill
		}
		return nil
	}
	n := copy(buf, page)
	for i := n; i < len(buf); i++ {
		buf[i] = fill
	}
	return nil
}

func (b *MemBlob) WritePage(index uint32, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	page := make([]byte, len(buf))
	copy(page, buf)
	b.pages[index] = page
	return nil
}

func (b *MemBlob) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pages = make(map[uint32][]byte)
	return nil
}

func (b *MemBlob) Close() error {
	return nil
}
