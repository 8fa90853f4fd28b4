package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reviewloop/relay/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations.
// Using two-arg pg_try_advisory_xact_lock(major, minor) for proper namespacing.
// Major key 1000 is reserved for relay reaper operations.
const (
	advisoryLockReaperMajor             = 1000
	advisoryLockReaperDeleteAcked       = 1 // minor key for DeleteAckedOlderThan
	advisoryLockReaperDeleteDeadLetters = 2 // minor key for DeleteDeadLettersOlderThan
)

// DeleteAckedOlderThan deletes acknowledged deliveries older than age.
// Processes up to batchSize rows per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of deliveries deleted.
func (r *ChannelRepo) DeleteAckedOlderThan(ctx context.Context, age time.Duration, batchSize int) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeleteAcked).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-age)

			res, err := tx.ExecContext(ctx, `
				DELETE FROM deliveries
				WHERE id IN (
					SELECT id FROM deliveries
					WHERE status = 'acked'
					  AND (acked_at < $1 OR (acked_at IS NULL AND updated_at < $1))
					ORDER BY COALESCE(acked_at, updated_at)
					LIMIT $2
				)
			`, cutoffTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete acked deliveries: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// DeleteDeadLettersOlderThan deletes dead letters older than age.
// Processes up to batchSize rows per call to prevent long locks and I/O spikes.
// Uses advisory locks to prevent concurrent reaper instances from conflicting.
// Returns the number of dead letters deleted.
func (r *ChannelRepo) DeleteDeadLettersOlderThan(ctx context.Context, age time.Duration, batchSize int) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, advisoryLockReaperDeleteDeadLetters).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				rowsAffected = 0
				return nil
			}

			currentTime := r.timeProvider.Now()
			cutoffTime := currentTime.Add(-age)

			res, err := tx.ExecContext(ctx, `
				DELETE FROM dead_letters
				WHERE delivery_id IN (
					SELECT delivery_id FROM dead_letters
					WHERE dead_lettered_at < $1
					ORDER BY dead_lettered_at
					LIMIT $2
				)
			`, cutoffTime.UTC(), batchSize)
			if err != nil {
				return fmt.Errorf("delete old dead letters: %w", err)
			}

			ra, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			rowsAffected = ra
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}
