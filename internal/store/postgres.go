package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values and price measures are stored as NUMERIC for exact
// precision; addresses are stored as checksummed hex.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const poolColumns = `id, name, creator, whitelist, entry_amount::TEXT,
	join_deadline, unlock_time, risk_assets, exchange_venues,
	slippage_bps, fee_tier, phase, winner,
	amount_per_swap::TEXT, bonus_amount::TEXT, executor_reward::TEXT, executor,
	reward_pending, created_at, executed_at, declared_at`

const participantColumns = `pool_id, identity, assigned_asset, assigned_venue,
	asset_amount::TEXT, entry_price::TEXT, unlock_price::TEXT, percent_gain::TEXT,
	has_claimed, joined_at`

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool) (uint64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	// Ordinals are dense: serialize creators on the table lock.
	if _, err := tx.Exec(ctx, `LOCK TABLE pools IN EXCLUSIVE MODE`); err != nil {
		return 0, fmt.Errorf("lock pools: %w", err)
	}
	var id uint64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM pools`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next pool id: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO pools (id, name, creator, whitelist, entry_amount,
		        join_deadline, unlock_time, risk_assets, exchange_venues,
		        slippage_bps, fee_tier, phase, winner,
		        amount_per_swap, bonus_amount, executor_reward, executor,
		        created_at, executed_at, declared_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14::NUMERIC, $15::NUMERIC, $16::NUMERIC, $17, $18, $19, $20)`,
		id, p.Name, p.Creator.Hex(), hexList(p.Whitelist), p.EntryAmount.String(),
		p.JoinDeadline, p.UnlockTime, hexList(p.RiskAssets), hexList(p.ExchangeVenues),
		p.SlippageToleranceBps, p.FeeTier, string(p.Phase), p.Winner.Hex(),
		p.AmountPerSwap.String(), p.BonusAmount.String(), p.ExecutorReward.String(), p.Executor.Hex(),
		p.CreatedAt, p.ExecutedAt, p.DeclaredAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert pool: %w", err)
	}

	p.ID = id
	if err := upsertParticipants(ctx, tx, p); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id uint64) (*model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	p, err := scanPool(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM pool_participants
		 WHERE pool_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byPool, err := scanParticipants(rows)
	if err != nil {
		return nil, err
	}
	p.Participants = byPool[id]
	return p, nil
}

func (s *PostgresStore) GetPoolForUpdate(ctx context.Context, id uint64) (*model.Pool, error) {
	return s.GetPool(ctx, id)
}

func (s *PostgresStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE pools
		 SET phase = $2, winner = $3,
		     amount_per_swap = $4::NUMERIC, bonus_amount = $5::NUMERIC,
		     executor_reward = $6::NUMERIC, executor = $7,
		     executed_at = $8, declared_at = $9, reward_pending = $10
		 WHERE id = $1`,
		p.ID, string(p.Phase), p.Winner.Hex(),
		p.AmountPerSwap.String(), p.BonusAmount.String(),
		p.ExecutorReward.String(), p.Executor.Hex(),
		p.ExecutedAt, p.DeclaredAt, p.RewardPending,
	)
	if err != nil {
		return fmt.Errorf("update pool %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrPoolNotFound, p.ID)
	}
	if err := upsertParticipants(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM pool_participants ORDER BY pool_id, position`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()

	byPool, err := scanParticipants(prows)
	if err != nil {
		return nil, err
	}
	for i := range pools {
		pools[i].Participants = byPool[pools[i].ID]
	}
	return pools, nil
}

func (s *PostgresStore) PoolCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pools`).Scan(&n)
	return n, err
}

func (s *PostgresStore) InsertLedgerEntry(ctx context.Context, e *model.LedgerEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ledger_entries (id, pool_id, identity, kind, asset, amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7)`,
		e.ID, e.PoolID, e.Identity.Hex(), string(e.Kind), e.Asset.Hex(),
		e.Amount.String(), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetLedgerEntriesByPool(ctx context.Context, poolID uint64) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, identity, kind, asset, amount::TEXT, timestamp
		 FROM ledger_entries WHERE pool_id = $1 ORDER BY timestamp, id`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

func (s *PostgresStore) GetLedgerEntriesByIdentity(ctx context.Context, identity common.Address) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, identity, kind, asset, amount::TEXT, timestamp
		 FROM ledger_entries WHERE identity = $1 ORDER BY timestamp, id`, identity.Hex())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// upsertParticipants writes every participant row. Participants are
// append-only, so position is a stable key.
func upsertParticipants(ctx context.Context, tx pgx.Tx, p *model.Pool) error {
	for i, pt := range p.Participants {
		_, err := tx.Exec(ctx,
			`INSERT INTO pool_participants (pool_id, position, identity, assigned_asset, assigned_venue,
			        asset_amount, entry_price, unlock_price, percent_gain, has_claimed, joined_at)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10, $11)
			 ON CONFLICT (pool_id, position) DO UPDATE
			 SET assigned_asset = EXCLUDED.assigned_asset,
			     assigned_venue = EXCLUDED.assigned_venue,
			     asset_amount = EXCLUDED.asset_amount,
			     entry_price = EXCLUDED.entry_price,
			     unlock_price = EXCLUDED.unlock_price,
			     percent_gain = EXCLUDED.percent_gain,
			     has_claimed = EXCLUDED.has_claimed`,
			p.ID, i, pt.Identity.Hex(), pt.AssignedAsset.Hex(), pt.AssignedVenue.Hex(),
			pt.AssetAmount.String(), pt.EntryPriceMeasure.String(),
			pt.UnlockPriceMeasure.String(), pt.PercentGain.String(),
			pt.HasClaimed, pt.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert participant %d of pool %d: %w", i, p.ID, err)
		}
	}
	return nil
}

// pgxRow is satisfied by both pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanPool(row pgxRow) (*model.Pool, error) {
	var p model.Pool
	var creator, winner, executor, phase string
	var whitelist, assets, venues []string
	var entry, perSwap, bonus, reward string
	var executedAt, declaredAt *time.Time

	if err := row.Scan(&p.ID, &p.Name, &creator, &whitelist, &entry,
		&p.JoinDeadline, &p.UnlockTime, &assets, &venues,
		&p.SlippageToleranceBps, &p.FeeTier, &phase, &winner,
		&perSwap, &bonus, &reward, &executor,
		&p.RewardPending, &p.CreatedAt, &executedAt, &declaredAt); err != nil {
		return nil, err
	}

	ph, err := model.ParsePhase(phase)
	if err != nil {
		return nil, err
	}
	p.Phase = ph
	p.Creator = common.HexToAddress(creator)
	p.Winner = common.HexToAddress(winner)
	p.Executor = common.HexToAddress(executor)
	p.Whitelist = addressList(whitelist)
	p.RiskAssets = addressList(assets)
	p.ExchangeVenues = addressList(venues)
	p.EntryAmount, _ = decimal.NewFromString(entry)
	p.AmountPerSwap, _ = decimal.NewFromString(perSwap)
	p.BonusAmount, _ = decimal.NewFromString(bonus)
	p.ExecutorReward, _ = decimal.NewFromString(reward)
	p.ExecutedAt = executedAt
	p.DeclaredAt = declaredAt
	return &p, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanParticipants(rows pgxRows) (map[uint64][]model.Participant, error) {
	out := make(map[uint64][]model.Participant)
	for rows.Next() {
		var poolID uint64
		var pt model.Participant
		var identity, asset, venue string
		var amount, entry, unlock, gain string

		if err := rows.Scan(&poolID, &identity, &asset, &venue,
			&amount, &entry, &unlock, &gain,
			&pt.HasClaimed, &pt.JoinedAt); err != nil {
			return nil, err
		}
		pt.Identity = common.HexToAddress(identity)
		pt.AssignedAsset = common.HexToAddress(asset)
		pt.AssignedVenue = common.HexToAddress(venue)
		pt.AssetAmount, _ = decimal.NewFromString(amount)
		pt.EntryPriceMeasure, _ = decimal.NewFromString(entry)
		pt.UnlockPriceMeasure, _ = decimal.NewFromString(unlock)
		pt.PercentGain, _ = decimal.NewFromString(gain)
		out[poolID] = append(out[poolID], pt)
	}
	return out, rows.Err()
}

func scanLedgerEntries(rows pgxRows) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var identity, kind, asset, amount string

		if err := rows.Scan(&e.ID, &e.PoolID, &identity, &kind, &asset,
			&amount, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Identity = common.HexToAddress(identity)
		e.Kind = model.LedgerKind(kind)
		e.Asset = common.HexToAddress(asset)
		e.Amount, _ = decimal.NewFromString(amount)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func hexList(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func addressList(hexes []string) []common.Address {
	out := make([]common.Address, len(hexes))
	for i, h := range hexes {
		out[i] = common.HexToAddress(h)
	}
	return out
}
