package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/memepool/pool-engine/internal/model"
)

// fillLua caches ARGV[2] under KEYS[1] only while the generation counter
// in KEYS[2] still reads ARGV[1], the value seen before the primary was
// queried. A write that committed in between bumps the counter, so a
// reader holding a pre-commit snapshot cannot put it back into the cache.
const fillLua = `
local gen = redis.call('GET', KEYS[2]) or ''
if gen ~= ARGV[1] then
    return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store, then bump the key's generation and
// invalidate it; reads check Redis first then fall back to the primary.
//
// GetPoolForUpdate always reads the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	fillSc  *redis.Script
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		fillSc:  redis.NewScript(fillLua),
	}
}

// --- Write-through ---

func (s *CachedStore) CreatePool(ctx context.Context, p *model.Pool) (uint64, error) {
	id, err := s.primary.CreatePool(ctx, p)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, poolCountKey)
	return id, nil
}

func (s *CachedStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	err := s.primary.UpdatePool(ctx, p)
	// Invalidate either way; next read will re-populate from the primary.
	s.invalidate(ctx, poolKey(p.ID))
	return err
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	if err := s.primary.InsertLedgerEntry(ctx, entry); err != nil {
		return err
	}
	s.invalidate(ctx, ledgerKey(entry.PoolID))
	return nil
}

// --- Read-through ---

func (s *CachedStore) GetPool(ctx context.Context, id uint64) (*model.Pool, error) {
	key := poolKey(id)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var p model.Pool
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	gen, genOK := s.generation(ctx, key)
	p, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	if genOK {
		if data, err := json.Marshal(p); err == nil {
			s.fill(ctx, key, gen, data)
		}
	}
	return p, nil
}

func (s *CachedStore) GetPoolForUpdate(ctx context.Context, id uint64) (*model.Pool, error) {
	return s.primary.GetPoolForUpdate(ctx, id)
}

func (s *CachedStore) PoolCount(ctx context.Context) (uint64, error) {
	if n, err := s.rdb.Get(ctx, poolCountKey).Uint64(); err == nil {
		return n, nil
	}

	gen, genOK := s.generation(ctx, poolCountKey)
	n, err := s.primary.PoolCount(ctx)
	if err != nil {
		return 0, err
	}
	if genOK {
		s.fill(ctx, poolCountKey, gen, []byte(fmt.Sprint(n)))
	}
	return n, nil
}

func (s *CachedStore) GetLedgerEntriesByPool(ctx context.Context, poolID uint64) ([]model.LedgerEntry, error) {
	key := ledgerKey(poolID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var entries []model.LedgerEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	gen, genOK := s.generation(ctx, key)
	entries, err := s.primary.GetLedgerEntriesByPool(ctx, poolID)
	if err != nil {
		return nil, err
	}
	if genOK {
		if data, err := json.Marshal(entries); err == nil {
			s.fill(ctx, key, gen, data)
		}
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) GetLedgerEntriesByIdentity(ctx context.Context, identity common.Address) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByIdentity(ctx, identity)
}

// --- Cache helpers ---

// generation reads key's counter before the primary is queried. A Redis
// error reports false and the read is served uncached.
func (s *CachedStore) generation(ctx context.Context, key string) (string, bool) {
	gen, err := s.rdb.Get(ctx, genKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", true
	}
	return gen, err == nil
}

func (s *CachedStore) fill(ctx context.Context, key, gen string, data []byte) {
	_ = s.fillSc.Run(ctx, s.rdb, []string{key, genKey(key)}, gen, data, s.ttl.Milliseconds()).Err()
}

// invalidate runs after the primary has committed: bump first so that an
// in-flight fill holding an older snapshot is refused, then drop the value.
func (s *CachedStore) invalidate(ctx context.Context, key string) {
	pipe := s.rdb.TxPipeline()
	pipe.Incr(ctx, genKey(key))
	pipe.Del(ctx, key)
	_, _ = pipe.Exec(ctx)
}

const poolCountKey = "pools:count"

func poolKey(id uint64) string   { return fmt.Sprintf("pool:%d", id) }
func ledgerKey(id uint64) string { return fmt.Sprintf("ledger:pool:%d", id) }
func genKey(key string) string   { return "gen:" + key }
