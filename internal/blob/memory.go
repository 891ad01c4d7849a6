package blob

import (
	"context"
	"sync"

	"idregistry/pkg/platform/sentinel"
)

// MemoryStore keeps blobs in process. Dev and test use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, namespace, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[namespace+":"+key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[namespace+":"+key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Len reports the number of stored blobs. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
