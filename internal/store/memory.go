package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/memepool/pool-engine/internal/model"
)

// MemoryStore implements Store with an in-memory arena. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	pools  []*model.Pool // index == pool ID
	ledger []model.LedgerEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) CreatePool(_ context.Context, p *model.Pool) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uint64(len(s.pools))
	// Store a copy to avoid external mutation.
	stored := p.Clone()
	stored.ID = id
	s.pools = append(s.pools, stored)
	p.ID = id
	return id, nil
}

func (s *MemoryStore) GetPool(_ context.Context, id uint64) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= uint64(len(s.pools)) {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, id)
	}
	return s.pools[id].Clone(), nil
}

func (s *MemoryStore) GetPoolForUpdate(ctx context.Context, id uint64) (*model.Pool, error) {
	return s.GetPool(ctx, id)
}

func (s *MemoryStore) UpdatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID >= uint64(len(s.pools)) {
		return fmt.Errorf("%w: %d", ErrPoolNotFound, p.ID)
	}
	s.pools[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *p.Clone())
	}
	return pools, nil
}

func (s *MemoryStore) PoolCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.pools)), nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByPool(_ context.Context, poolID uint64) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.PoolID == poolID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByIdentity(_ context.Context, identity common.Address) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.Identity == identity {
			result = append(result, e)
		}
	}
	return result, nil
}
