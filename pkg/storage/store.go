// Package storage provides the opaque key-to-bytes persistence seam chunk
// and subtask data are handed off to once a subtask completes. There is no
// direct teacher analogue for this seam; its interface shape follows
// pkg/pool/connection.go's ConnectionFactory convention (a small interface
// in front of a concrete default backed by a single real client).
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// ErrNotFound is returned by Get when key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Store is the opaque persistence seam: put/get/delete on arbitrary byte
// keys, with no notion of what the bytes mean. No other package in this
// repository uses it; pkg/consensus keeps the replicated ActorPoolConfig
// in its own Raft state.
type Store interface {
	Put(ctx context.Context, key []byte, value []byte) error
	Get(ctx context.Context, key []byte) ([]byte, error)
	Delete(ctx context.Context, key []byte) error
	Has(ctx context.Context, key []byte) (bool, error)
	Close() error
}

// LevelDBStore is the default Store backend.
type LevelDBStore struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a goleveldb database at path.
func Open(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, ldberrors.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: get: %w", err)
	}
	return v, nil
}

func (s *LevelDBStore) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Delete(key, nil); err != nil {
		return fmt.Errorf("storage: delete: %w", err)
	}
	return nil
}

func (s *LevelDBStore) Has(ctx context.Context, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("storage: has: %w", err)
	}
	return ok, nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
