package credential

import (
	"context"
	"sync"
)

// MemoryStore keeps reissue requests in process. Dev and test use.
type MemoryStore struct {
	mu   sync.RWMutex
	reqs map[string]ReissueRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: make(map[string]ReissueRequest)}
}

func (s *MemoryStore) ListByRecord(_ context.Context, hashedIdentifier string) ([]ReissueRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ReissueRequest
	for _, req := range s.reqs {
		if req.HashedIdentifier == hashedIdentifier {
			out = append(out, req)
		}
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, req ReissueRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.ID] = req
	return nil
}
