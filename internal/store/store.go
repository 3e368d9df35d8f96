// Package store defines the persistence interface for the pool engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-node development).
package store

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/memepool/pool-engine/internal/model"
)

// ErrPoolNotFound is returned when no pool has the requested index.
var ErrPoolNotFound = errors.New("store: pool not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// The pool registry is append-only: pools are addressed by the ordinal
// assigned at creation and are never deleted.
type Store interface {
	// --- Pool registry ---

	// CreatePool appends a pool, assigns its ID and returns it.
	CreatePool(ctx context.Context, pool *model.Pool) (uint64, error)

	// GetPool returns a copy of the pool with the given ID. Cached
	// implementations may serve it from the cache.
	GetPool(ctx context.Context, id uint64) (*model.Pool, error)

	// GetPoolForUpdate returns the pool as the source of truth holds it.
	// Value-moving operations read through this, never through a cache.
	GetPoolForUpdate(ctx context.Context, id uint64) (*model.Pool, error)

	// UpdatePool replaces the stored record, participants included.
	UpdatePool(ctx context.Context, pool *model.Pool) error

	// ListPools returns all pools in ID order.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// PoolCount returns the number of pools ever created.
	PoolCount(ctx context.Context) (uint64, error)

	// --- Immutable ledger ---

	// InsertLedgerEntry appends an immutable value-movement record.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByPool returns all movements for a pool.
	GetLedgerEntriesByPool(ctx context.Context, poolID uint64) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByIdentity returns all movements involving an identity.
	GetLedgerEntriesByIdentity(ctx context.Context, identity common.Address) ([]model.LedgerEntry, error)
}
