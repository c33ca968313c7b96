package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
)

// checkpointKey is the indexer_state key holding the last fully
// processed block number.
const checkpointKey = "last_block_number"

// CheckpointRepository persists the sync checkpoint. The value only
// advances after a batch has fully committed, so a crash at any point is
// safe to resume from.
type CheckpointRepository struct {
	db *DB
}

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(db *DB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get returns the checkpoint block number. The second return is false
// when no checkpoint has been stored yet.
func (r *CheckpointRepository) Get(ctx context.Context) (uint64, bool, error) {
	var value string
	err := r.db.pool.QueryRow(ctx,
		`SELECT value FROM indexer_state WHERE key = $1`, checkpointKey).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("query checkpoint: %w", err)
	}

	block, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse checkpoint %q: %w", value, err)
	}
	return block, true, nil
}

// Set stores the checkpoint block number.
func (r *CheckpointRepository) Set(ctx context.Context, block uint64) error {
	sql := `
		INSERT INTO indexer_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.pool.Exec(ctx, sql, checkpointKey, strconv.FormatUint(block, 10)); err != nil {
		return fmt.Errorf("store checkpoint: %w", err)
	}
	return nil
}
