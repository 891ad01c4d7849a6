package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"idregistry/pkg/platform/sentinel"
)

// PebbleStore is the embedded blob backend. One key per artifact, prefixed
// by namespace.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) the blob database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open blob db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) Put(_ context.Context, namespace, key string, data []byte) error {
	if err := s.db.Set(storeKey(namespace, key), data, pebble.Sync); err != nil {
		return fmt.Errorf("put blob %s/%s: %w", namespace, key, errors.Join(sentinel.ErrUnavailable, err))
	}
	return nil
}

func (s *PebbleStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	val, closer, err := s.db.Get(storeKey(namespace, key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get blob %s/%s: %w", namespace, key, errors.Join(sentinel.ErrUnavailable, err))
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func storeKey(namespace, key string) []byte {
	return []byte(namespace + ":" + key)
}
