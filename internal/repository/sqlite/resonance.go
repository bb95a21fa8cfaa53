package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/fragments/internal/apperror"
)

// Resonate records visitorID's like and bumps the count in one transaction.
func (db *DB) Resonate(ctx context.Context, fragmentID, visitorID string) (int, error) {
	return db.inTx(ctx, func(tx *sql.Tx) (int, error) {
		if err := fragmentExists(ctx, tx, fragmentID); err != nil {
			return 0, err
		}
		result, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO resonances (fragment_id, visitor_id, created_at) VALUES (?, ?, ?)`,
			fragmentID, visitorID, time.Now().UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: recording resonance: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
		} else if n == 0 {
			return 0, apperror.Conflict("resonance", fragmentID)
		}
		return bumpCount(ctx, tx, fragmentID, "resonance_count", 1)
	})
}

// Unresonate removes visitorID's like. Removing a like that does not exist
// is NotFound.
func (db *DB) Unresonate(ctx context.Context, fragmentID, visitorID string) (int, error) {
	return db.inTx(ctx, func(tx *sql.Tx) (int, error) {
		if err := fragmentExists(ctx, tx, fragmentID); err != nil {
			return 0, err
		}
		result, err := tx.ExecContext(ctx,
			`DELETE FROM resonances WHERE fragment_id = ? AND visitor_id = ?`,
			fragmentID, visitorID,
		)
		if err != nil {
			return 0, fmt.Errorf("sqlite: removing resonance: %w", err)
		}
		if err := expectOne(result, "resonance", fragmentID); err != nil {
			return 0, err
		}
		return bumpCount(ctx, tx, fragmentID, "resonance_count", -1)
	})
}

// inTx runs fn in a transaction, committing when it succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) (int, error)) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing: %w", err)
	}
	return n, nil
}

func fragmentExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM fragments WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return apperror.NotFound("fragment", id)
	}
	if err != nil {
		return fmt.Errorf("sqlite: looking up fragment %s: %w", id, err)
	}
	return nil
}

// bumpCount adds delta to a counter column and returns the new value. column
// is always a literal from this package.
func bumpCount(ctx context.Context, tx *sql.Tx, id, column string, delta int) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		fmt.Sprintf(`UPDATE fragments SET %[1]s = MAX(%[1]s + ?, 0) WHERE id = ? RETURNING %[1]s`, column),
		delta, id,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: updating %s of %s: %w", column, id, err)
	}
	return n, nil
}
