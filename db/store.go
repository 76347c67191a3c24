package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sovbtc/bitcoin-da/daverifier"
)

// Store persists the verifier's ChainValidityCondition chain and the
// last processed block height.
type Store struct {
	db *DB
}

// NewStore wraps an open DB as a Store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// PutValidityCondition records the validity condition verified at a
// block height and advances the processed-blocks marker to that height.
// Both writes happen in one transaction so a crash between them can
// never leave the marker ahead of the stored condition it claims to
// cover.
func (s *Store) PutValidityCondition(ctx context.Context, height int64, cond daverifier.ChainValidityCondition, verifiedAt int64) error {
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin put validity condition: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validity_conditions (block_height, prev_hash, block_hash, verified_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(block_height) DO UPDATE SET
			prev_hash = excluded.prev_hash,
			block_hash = excluded.block_hash,
			verified_at = excluded.verified_at
	`, height, cond.PrevHash[:], cond.BlockHash[:], verifiedAt)
	if err != nil {
		return fmt.Errorf("db: insert validity condition: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO processed_blocks (id, last_height) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_height = excluded.last_height
		WHERE excluded.last_height > processed_blocks.last_height
	`, height)
	if err != nil {
		return fmt.Errorf("db: advance processed height: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit put validity condition: %w", err)
	}
	return nil
}

// Latest returns the validity condition stored at the highest known
// block height. ok is false if no condition has been persisted yet.
func (s *Store) Latest(ctx context.Context) (cond daverifier.ChainValidityCondition, height int64, ok bool, err error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT block_height, prev_hash, block_hash
		FROM validity_conditions
		ORDER BY block_height DESC
		LIMIT 1
	`)

	var prevHash, blockHash []byte
	if err := row.Scan(&height, &prevHash, &blockHash); err != nil {
		if err == sql.ErrNoRows {
			return daverifier.ChainValidityCondition{}, 0, false, nil
		}
		return daverifier.ChainValidityCondition{}, 0, false, fmt.Errorf("db: query latest validity condition: %w", err)
	}

	copy(cond.PrevHash[:], prevHash)
	copy(cond.BlockHash[:], blockHash)
	return cond, height, true, nil
}

// Tip returns the last processed block height. ok is false if no block
// has been processed yet.
func (s *Store) Tip(ctx context.Context) (height int64, ok bool, err error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT last_height FROM processed_blocks WHERE id = 1`)

	if err := row.Scan(&height); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("db: query processed height: %w", err)
	}
	return height, true, nil
}

// ConditionAt returns the validity condition stored at an exact block
// height.
func (s *Store) ConditionAt(ctx context.Context, height int64) (cond daverifier.ChainValidityCondition, ok bool, err error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT prev_hash, block_hash FROM validity_conditions WHERE block_height = ?
	`, height)

	var prevHash, blockHash []byte
	if err := row.Scan(&prevHash, &blockHash); err != nil {
		if err == sql.ErrNoRows {
			return daverifier.ChainValidityCondition{}, false, nil
		}
		return daverifier.ChainValidityCondition{}, false, fmt.Errorf("db: query validity condition at %d: %w", height, err)
	}

	copy(cond.PrevHash[:], prevHash)
	copy(cond.BlockHash[:], blockHash)
	return cond, true, nil
}
