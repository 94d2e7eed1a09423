package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStorage keeps session entries in an embedded Badger database so a
// login survives process restarts without an external service.
type BadgerStorage struct {
	db     *badger.DB
	prefix []byte
}

// OpenBadgerStorage opens (creating if needed) a Badger database at path.
// An empty path opens an in-memory database, which is handy in tests.
func OpenBadgerStorage(path string) (*BadgerStorage, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o700); err != nil {
			return nil, fmt.Errorf("create session directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path).WithSyncWrites(true)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", ErrStorageUnavailable, err)
	}
	return &BadgerStorage{db: db, prefix: []byte("session/")}, nil
}

func (b *BadgerStorage) key(key string) []byte {
	out := make([]byte, 0, len(b.prefix)+len(key))
	out = append(out, b.prefix...)
	return append(out, key...)
}

// GetItem reads a value. A missing key is reported as ok=false.
func (b *BadgerStorage) GetItem(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return string(value), true, nil
}

// SetItem writes a value.
func (b *BadgerStorage) SetItem(_ context.Context, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(b.key(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// RemoveItem deletes a key. Removing a missing key is not an error.
func (b *BadgerStorage) RemoveItem(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Close releases the underlying database.
func (b *BadgerStorage) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
