package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// SuspectBlockRepo implements storage.SuspectBlockRepository using PostgreSQL.
type SuspectBlockRepo struct {
	db *DB
}

// NewSuspectBlockRepo creates a new PostgreSQL suspect block repository.
func NewSuspectBlockRepo(db *DB) *SuspectBlockRepo {
	return &SuspectBlockRepo{db: db}
}

// StreamPending streams pending control-table heights, highest first.
// Errors propagate raw so callers can classify undefined-table themselves.
func (r *SuspectBlockRepo) StreamPending(
	ctx context.Context,
	yield func(blockNumber int64) error,
) error {
	query := `
		SELECT block_number
		FROM suspect_blocks
		WHERE corrected IS NULL OR corrected = false
		ORDER BY block_number DESC
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var number int64
		if err := rows.Scan(&number); err != nil {
			return fmt.Errorf("failed to scan suspect block: %w", err)
		}
		if err := yield(number); err != nil {
			return err
		}
	}
	return rows.Err()
}

// InvalidateBatch runs the invalidation transaction for one batch of
// heights. Both locked selections use the documented global lock order
// (blocks by hash ascending, control rows by block number descending);
// other writers of these tables lock under the same order, which is what
// keeps overlapping batches from deadlocking.
func (r *SuspectBlockRepo) InvalidateBatch(
	ctx context.Context,
	blockNumbers []int64,
) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var hashes []string
	err = tx.SelectContext(ctx, &hashes, `
		SELECT hash FROM blocks
		WHERE number = ANY($1)
		ORDER BY hash ASC
		FOR UPDATE
	`, pq.Array(blockNumbers))
	if err != nil {
		return 0, fmt.Errorf("failed to lock blocks: %w", err)
	}

	if len(hashes) > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE blocks SET consensus = false
			WHERE hash = ANY($1)
		`, pq.Array(hashes))
		if err != nil {
			return 0, fmt.Errorf("failed to demote blocks: %w", err)
		}
	}

	var locked []int64
	err = tx.SelectContext(ctx, &locked, `
		SELECT block_number FROM suspect_blocks
		ORDER BY block_number DESC
		FOR UPDATE
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to lock suspect blocks: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE suspect_blocks SET corrected = true
		WHERE block_number = ANY($1)
	`, pq.Array(blockNumbers))
	if err != nil {
		return 0, fmt.Errorf("failed to mark suspect blocks corrected: %w", err)
	}

	corrected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit invalidation: %w", err)
	}
	return corrected, nil
}
