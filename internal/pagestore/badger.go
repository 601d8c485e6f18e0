package pagestore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB holds pages of several blobs in one badger database.
// An empty dir opens an in-memory database.
type BadgerDB struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the page database in dir.
func OpenBadger(dir string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerDB{db: db}, nil
}

// Blob returns a view of the database holding the pages under prefix.
func (b *BadgerDB) Blob(prefix string) Blob {
	return &badgerBlob{db: b.db, prefix: []byte(prefix + "/")}
}

// Close closes the database.
func (b *BadgerDB) Close() error {
	return b.db.Close()
}

type badgerBlob struct {
	db     *badger.DB
	prefix []byte
}

func (b *badgerBlob) key(index uint32) []byte {
	key := make([]byte, len(b.prefix)+4)
	copy(key, b.prefix)
	binary.BigEndian.PutUint32(key[len(b.prefix):], index)
	return key
}

func (b *badgerBlob) ReadPage(index uint32, buf []byte, fill byte) error {
	for i := range buf {
		buf[i] = fill
	}
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(index))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("page %d: %w", index, err)
		}
		return item.Value(func(val []byte) error {
			copy(buf, val)
			return nil
		})
	})
}

func (b *badgerBlob) WritePage(index uint32, buf []byte) error {
	page := make([]byte, len(buf))
	copy(page, buf)
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(index), page)
	})
}

func (b *badgerBlob) Reset() error {
	return b.db.DropPrefix(b.prefix)
}

// Close is a no-op; the database is closed through BadgerDB.
func (b *badgerBlob) Close() error {
	return nil
}
