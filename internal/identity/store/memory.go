// Package store persists canonical identity records, their history trails,
// and the provisioned shard salts.
package store

import (
	"context"
	"sync"

	"idregistry/internal/identity"
	"idregistry/internal/identity/shard"
	"idregistry/pkg/platform/sentinel"
)

// Memory keeps records in process. Dev and test use; the postgres store is
// the production backend.
type Memory struct {
	mu         sync.RWMutex
	records    map[string]*identity.Record
	history    []identity.HistoryRecord
	docHistory []identity.DocumentHistory
	bioHistory []identity.BiometricHistory
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*identity.Record)}
}

func (s *Memory) Get(_ context.Context, hashedIdentifier string) (*identity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[hashedIdentifier]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Memory) Insert(_ context.Context, rec *identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.HashedIdentifier]; ok {
		return sentinel.ErrConflict
	}
	s.records[rec.HashedIdentifier] = rec.Clone()
	return nil
}

// Save writes an updated record. rec.Version must equal the stored version;
// a stale version loses the race and returns sentinel.ErrConflict. On
// success the stored and passed-in versions are bumped.
func (s *Memory) Save(_ context.Context, rec *identity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[rec.HashedIdentifier]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != rec.Version {
		return sentinel.ErrConflict
	}
	rec.Version++
	s.records[rec.HashedIdentifier] = rec.Clone()
	return nil
}

func (s *Memory) AppendHistory(_ context.Context, h identity.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.Payload = append([]byte(nil), h.Payload...)
	s.history = append(s.history, h)
	return nil
}

func (s *Memory) AppendDocumentHistory(_ context.Context, hs []identity.DocumentHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docHistory = append(s.docHistory, hs...)
	return nil
}

func (s *Memory) AppendBiometricHistory(_ context.Context, hs []identity.BiometricHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bioHistory = append(s.bioHistory, hs...)
	return nil
}

// WithinTx runs fn directly; the memory store has no transactions.
func (s *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// History returns the full history trail. Test helper.
func (s *Memory) History() []identity.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]identity.HistoryRecord(nil), s.history...)
}

// DocumentHistoryTrail returns all document history rows. Test helper.
func (s *Memory) DocumentHistoryTrail() []identity.DocumentHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]identity.DocumentHistory(nil), s.docHistory...)
}

// BiometricHistoryTrail returns all biometric history rows. Test helper.
func (s *Memory) BiometricHistoryTrail() []identity.BiometricHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]identity.BiometricHistory(nil), s.bioHistory...)
}

// SaltMemory is an in-process shard.SaltStore seeded at construction.
type SaltMemory struct {
	mu    sync.RWMutex
	salts map[saltKey]string
}

type saltKey struct {
	shard   int64
	purpose shard.SaltPurpose
}

func NewSaltMemory() *SaltMemory {
	return &SaltMemory{salts: make(map[saltKey]string)}
}

// Seed provisions a salt for one shard and purpose.
func (s *SaltMemory) Seed(shardIdx int64, purpose shard.SaltPurpose, salt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salts[saltKey{shardIdx, purpose}] = salt
}

func (s *SaltMemory) SaltFor(_ context.Context, shardIdx int64, purpose shard.SaltPurpose) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	salt, ok := s.salts[saltKey{shardIdx, purpose}]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return salt, nil
}
